package models

// PriceInfo pairs the listed price with the struck-through one.
type PriceInfo struct {
	Original *float64 `json:"original,omitempty"`
	Current  *float64 `json:"current,omitempty"`
	Discount string   `json:"discount,omitempty"`
}

func (p PriceInfo) IsOnSale() bool {
	return p.Original != nil && p.Current != nil && *p.Original > *p.Current
}

// DiscountPercentage is computed from the two prices, not from the badge text.
func (p PriceInfo) DiscountPercentage() (float64, bool) {
	if !p.IsOnSale() {
		return 0, false
	}
	return (*p.Original - *p.Current) / *p.Original * 100, true
}
