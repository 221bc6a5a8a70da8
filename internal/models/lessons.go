package models

// LessonPlan is a single planned lesson.
type LessonPlan struct {
	Meta
	Title      string   `json:"title"`
	Subject    string   `json:"subject"`
	Grade      string   `json:"grade"`
	Duration   int      `json:"duration"` // minutes
	Date       string   `json:"date"`
	Status     string   `json:"status"` // draft, ready, taught
	Objectives []string `json:"objectives"`
	Materials  []string `json:"materials"`
	Notes      string   `json:"notes,omitempty"`
	// Attachment is a base64 encoded uploaded document.
	Attachment string `json:"attachment,omitempty"`
}

// WithMeta implements Entity.
func (l LessonPlan) WithMeta(m Meta) LessonPlan {
	l.Meta = m
	return l
}
