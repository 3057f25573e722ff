package domain

import "fmt"

// Role — роль пользователя, выданная внешним модулем аутентификации.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleMechanic Role = "MECHANIC"
	RoleAdmin    Role = "ADMIN"
)

// Valid проверяет значение роли.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleMechanic, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor — уже аутентифицированный инициатор команды.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin сообщает, является ли актор администратором.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccessCustomer проверяет доступ к ресурсам клиента: свой ресурс или администратор.
func (a Actor) CanAccessCustomer(customerID string) bool {
	return a.IsAdmin() || (a.ID != "" && a.ID == customerID)
}

// Authorize возвращает ErrNotAuthorized, если актор действует над чужим ресурсом.
func (a Actor) Authorize(customerID string) error {
	if !a.CanAccessCustomer(customerID) {
		return fmt.Errorf("%w: actor %s cannot access customer %s", ErrNotAuthorized, a.ID, customerID)
	}
	return nil
}
