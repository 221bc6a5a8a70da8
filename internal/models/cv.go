package models

// Experience is one entry of the resume timeline.
type Experience struct {
	Meta
	Company   string   `json:"company"`
	Role      string   `json:"role"`
	Location  string   `json:"location,omitempty"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate,omitempty"` // empty while current
	Summary   string   `json:"summary"`
	Skills    []string `json:"skills"`
}

// WithMeta implements Entity.
func (e Experience) WithMeta(m Meta) Experience {
	e.Meta = m
	return e
}
