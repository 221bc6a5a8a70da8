package models

// Product is a storefront catalogue item.
type Product struct {
	Meta
	Name        string   `json:"name"`
	SKU         string   `json:"sku"`
	Category    string   `json:"category"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	Rating      float64  `json:"rating,omitempty"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	Image       string   `json:"image,omitempty"`
}

// WithMeta implements Entity.
func (p Product) WithMeta(m Meta) Product {
	p.Meta = m
	return p
}
