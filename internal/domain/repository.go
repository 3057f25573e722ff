package domain

import "context"

// SKUFilter задаёт выборку каталога. По умолчанию удалённые SKU исключаются.
type SKUFilter struct {
	IncludeDeleted bool
	OnlyDeleted    bool
}

// SKUDependencies — число исторических ссылок на SKU.
type SKUDependencies struct {
	OrderLines    int
	CartLines     int
	PartsRequests int
}

// Total возвращает общее число ссылок.
func (d SKUDependencies) Total() int {
	return d.OrderLines + d.CartLines + d.PartsRequests
}

// SKURepository описывает хранилище каталога и остатков.
type SKURepository interface {
	// Create сохраняет новый SKU. Повтор кода или названия даёт ErrAlreadyExists.
	Create(sku SKU) error
	// Get возвращает SKU (в том числе удалённый) или NotFoundError.
	Get(id string) (SKU, error)
	// GetForUpdate читает SKU и удерживает блокировку строки до конца единицы работы.
	GetForUpdate(id string) (SKU, error)
	// Save применяет изменения с проверкой версии (optimistic locking).
	Save(sku SKU) error
	// List возвращает SKU по фильтру, упорядоченные по названию.
	List(filter SKUFilter) ([]SKU, error)
	// CountReferences считает ссылки из заказов, корзин и заявок.
	CountReferences(id string) (SKUDependencies, error)
}

// CartRepository описывает хранилище корзин (одна на клиента).
type CartRepository interface {
	Create(cart Cart) error
	// GetByCustomer возвращает корзину клиента или NotFoundError.
	GetByCustomer(customerID string) (Cart, error)
	// GetByCustomerForUpdate блокирует корзину до конца единицы работы.
	GetByCustomerForUpdate(customerID string) (Cart, error)
	// Save перезаписывает позиции корзины с проверкой версии.
	Save(cart Cart) error
}

// OrderFilter задаёт выборку заказов. Пустой CustomerID — все заказы.
type OrderFilter struct {
	CustomerID string
	Status     PaymentStatus
	Limit      int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или NotFoundError, если его нет.
	Get(id string) (Order, error)
	GetForUpdate(id string) (Order, error)
	// List возвращает заказы от новых к старым.
	List(filter OrderFilter) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// PartsRequestFilter задаёт выборку заявок; пустые поля не фильтруют.
type PartsRequestFilter struct {
	BookingID  string
	MechanicID string
	Status     PartsRequestStatus
}

// PartsRequestRepository описывает хранилище заявок механиков.
type PartsRequestRepository interface {
	// Create сохраняет заявку. Вторая PENDING-заявка на ту же пару (бронь, SKU) даёт ErrDuplicateRequest.
	Create(req PartsRequest) error
	Get(id string) (PartsRequest, error)
	GetForUpdate(id string) (PartsRequest, error)
	Save(req PartsRequest) error
	List(filter PartsRequestFilter) ([]PartsRequest, error)
	// HasPending проверяет наличие PENDING-заявки на пару (бронь, SKU).
	HasPending(bookingID, skuID string) (bool, error)
}

// BookingRepository — доступ к броням, которые ведёт внешний модуль.
type BookingRepository interface {
	Create(booking Booking) error
	Get(id string) (Booking, error)
	Save(booking Booking) error
}

// ServiceRepository — доступ к справочнику услуг.
type ServiceRepository interface {
	Create(service WorkshopService) error
	Get(id string) (WorkshopService, error)
}

// InvoiceRepository описывает хранилище счетов.
type InvoiceRepository interface {
	// Create сохраняет счёт. Повтор брони или номера даёт ErrAlreadyExists.
	Create(invoice Invoice) error
	Get(id string) (Invoice, error)
	GetByBooking(bookingID string) (Invoice, error)
	NumberExists(number string) (bool, error)
	ListByCustomer(customerID string) ([]Invoice, error)
	UpdatePDFURL(id, url string) error
}

// InvoicePaymentRepository описывает хранилище проверок оплаты счетов.
type InvoicePaymentRepository interface {
	Create(payment InvoicePayment) error
	Get(id string) (InvoicePayment, error)
	GetForUpdate(id string) (InvoicePayment, error)
	GetByInvoice(invoiceID string) (InvoicePayment, error)
	Save(payment InvoicePayment) error
	ListByStatus(status PaymentStatus) ([]InvoicePayment, error)
}

// Repositories — набор репозиториев, привязанных к одной единице работы.
type Repositories struct {
	SKUs            SKURepository
	Carts           CartRepository
	Orders          OrderRepository
	PartsRequests   PartsRequestRepository
	Bookings        BookingRepository
	Services        ServiceRepository
	Invoices        InvoiceRepository
	InvoicePayments InvoicePaymentRepository
	Outbox          OutboxWriter
	Timeline        TimelineRepository
}

// UnitOfWork выполняет fn атомарно: либо фиксируются все изменения, либо ни одно.
// Ошибка fn откатывает единицу работы и возвращается вызывающему как есть.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(r Repositories) error) error
}

// InvoiceSequence выдаёт монотонные номера счетов в пределах года. Пропуски допустимы.
type InvoiceSequence interface {
	Next(ctx context.Context, year int) (int64, error)
}
