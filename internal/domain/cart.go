package domain

import "time"

// CartLine — позиция корзины. Цена фиксируется в момент добавления.
type CartLine struct {
	ID             string
	SKUID          string
	Quantity       int
	Selection      map[string]string
	VariationKey   string
	UnitPriceMinor int64
	AddedAt        time.Time
}

// Cart — корзина клиента. Создаётся лениво, после оформления заказа очищается, но не удаляется.
type Cart struct {
	ID         string
	CustomerID string
	Lines      []CartLine
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FindLine ищет позицию с тем же SKU и тем же каноническим ключом вариации.
func (c *Cart) FindLine(skuID, variationKey string) (int, bool) {
	for i, line := range c.Lines {
		if line.SKUID == skuID && line.VariationKey == variationKey {
			return i, true
		}
	}
	return -1, false
}

// LineIndex ищет позицию по идентификатору.
func (c *Cart) LineIndex(lineID string) (int, bool) {
	for i, line := range c.Lines {
		if line.ID == lineID {
			return i, true
		}
	}
	return -1, false
}

// RemoveLine удаляет позицию по идентификатору; отсутствующая позиция — не ошибка.
func (c *Cart) RemoveLine(lineID string) {
	if idx, ok := c.LineIndex(lineID); ok {
		c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	}
}

// TotalAmountMinor — сумма корзины, всегда вычисляется из позиций.
func (c *Cart) TotalAmountMinor() int64 {
	var total int64
	for _, line := range c.Lines {
		total += int64(line.Quantity) * line.UnitPriceMinor
	}
	return total
}

// TotalItems — общее количество единиц в корзине.
func (c *Cart) TotalItems() int {
	total := 0
	for _, line := range c.Lines {
		total += line.Quantity
	}
	return total
}

// Clear очищает позиции корзины.
func (c *Cart) Clear() {
	c.Lines = nil
}

// Clone возвращает глубокую копию корзины.
func (c Cart) Clone() Cart {
	out := c
	if c.Lines != nil {
		out.Lines = make([]CartLine, len(c.Lines))
		for i, line := range c.Lines {
			line.Selection = cloneSelection(line.Selection)
			out.Lines[i] = line
		}
	}
	return out
}
