package domain

import (
	"sort"
	"strings"
)

const (
	variationPairSeparator  = ","
	variationValueSeparator = ":"
)

// VariationOption описывает одну ось вариаций SKU (например, цвет или размер).
type VariationOption struct {
	ID            string   `json:"variationId"`
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	AllowedValues []string `json:"allowedValues"`
	Required      bool     `json:"required"`
}

// allows проверяет, входит ли значение в список разрешённых.
func (o VariationOption) allows(value string) bool {
	for _, allowed := range o.AllowedValues {
		if allowed == value {
			return true
		}
	}
	return false
}

// CanonicalSelection нормализует выбор: обрезает пробелы и отбрасывает пустые пары.
func CanonicalSelection(selection map[string]string) map[string]string {
	result := make(map[string]string, len(selection))
	for k, v := range selection {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		result[k] = v
	}
	return result
}

// BuildVariationKey строит канонический ключ "k1:v1,k2:v2" с сортировкой по ключу.
// Пустой выбор даёт пустую строку.
func BuildVariationKey(selection map[string]string) string {
	canonical := CanonicalSelection(selection)
	if len(canonical) == 0 {
		return ""
	}

	keys := make([]string, 0, len(canonical))
	for k := range canonical {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+variationValueSeparator+canonical[k])
	}
	return strings.Join(pairs, variationPairSeparator)
}

// ParseVariationKey разбирает канонический ключ обратно в выбор.
// Некорректные пары молча отбрасываются.
func ParseVariationKey(key string) map[string]string {
	selection, _ := SplitVariationKey(key)
	return selection
}

// SplitVariationKey разбирает ключ и дополнительно возвращает отброшенные пары,
// чтобы вызывающий мог их залогировать.
func SplitVariationKey(key string) (map[string]string, []string) {
	selection := make(map[string]string)
	var dropped []string

	key = strings.TrimSpace(key)
	if key == "" {
		return selection, nil
	}

	for _, pair := range strings.Split(key, variationPairSeparator) {
		k, v, ok := strings.Cut(pair, variationValueSeparator)
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			dropped = append(dropped, pair)
			continue
		}
		selection[k] = v
	}
	return selection, dropped
}

// ValidateSelection проверяет выбор против схемы вариаций.
// Для SKU без схемы выбор должен быть пустым. Неизвестные оси игнорируются.
func ValidateSelection(schema []VariationOption, selection map[string]string) bool {
	canonical := CanonicalSelection(selection)
	if len(schema) == 0 {
		return len(canonical) == 0
	}

	for _, option := range schema {
		value, selected := canonical[option.ID]
		if !selected {
			if option.Required {
				return false
			}
			continue
		}
		if !option.allows(value) {
			return false
		}
	}
	return true
}

// knownSelection оставляет в выборе только оси, объявленные в схеме.
func knownSelection(schema []VariationOption, selection map[string]string) map[string]string {
	canonical := CanonicalSelection(selection)
	result := make(map[string]string, len(canonical))
	for _, option := range schema {
		if v, ok := canonical[option.ID]; ok {
			result[option.ID] = v
		}
	}
	return result
}

func cloneSchema(schema []VariationOption) []VariationOption {
	if schema == nil {
		return nil
	}
	out := make([]VariationOption, len(schema))
	for i, option := range schema {
		option.AllowedValues = append([]string(nil), option.AllowedValues...)
		out[i] = option
	}
	return out
}

func cloneSelection(selection map[string]string) map[string]string {
	if selection == nil {
		return nil
	}
	out := make(map[string]string, len(selection))
	for k, v := range selection {
		out[k] = v
	}
	return out
}
