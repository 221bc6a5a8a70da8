package models

// Recipe is a cookable dish in the meal planner.
type Recipe struct {
	Meta
	Title        string   `json:"title"`
	Cuisine      string   `json:"cuisine"`
	Category     string   `json:"category"`
	CookTime     int      `json:"cookTime"` // minutes
	Servings     int      `json:"servings"`
	Difficulty   string   `json:"difficulty"`
	Ingredients  []string `json:"ingredients"`
	Tags         []string `json:"tags"`
	Instructions string   `json:"instructions"`
	// Image is a base64 data URL.
	Image string `json:"image,omitempty"`
}

// WithMeta implements Entity.
func (r Recipe) WithMeta(m Meta) Recipe {
	r.Meta = m
	return r
}

// MealPlan schedules a recipe for a day and slot.
type MealPlan struct {
	Meta
	// Date is an ISO 8601 calendar date (2006-01-02).
	Date     string `json:"date"`
	Slot     string `json:"slot"` // breakfast, lunch, dinner, snack
	RecipeID string `json:"recipeId"`
	Notes    string `json:"notes,omitempty"`
}

// WithMeta implements Entity.
func (p MealPlan) WithMeta(m Meta) MealPlan {
	p.Meta = m
	return p
}
