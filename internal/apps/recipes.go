package apps

import (
	"time"

	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/models"
	"github.com/datavtar/localfirst/internal/query"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
	"go.uber.org/zap"
)

// RecipesApp is the recipe and meal planner.
const RecipesApp = "recipes"

// RecipeSchema is the query schema of recipes. maxCookTime maps to the
// range max.cookTime.
var RecipeSchema = query.Schema[models.Recipe]{
	Fields: map[string]query.Field[models.Recipe]{
		"title":       query.Text(func(r models.Recipe) string { return r.Title }),
		"cuisine":     query.Text(func(r models.Recipe) string { return r.Cuisine }),
		"category":    query.Text(func(r models.Recipe) string { return r.Category }),
		"difficulty":  query.Text(func(r models.Recipe) string { return r.Difficulty }),
		"cookTime":    query.Int(func(r models.Recipe) int { return r.CookTime }),
		"servings":    query.Int(func(r models.Recipe) int { return r.Servings }),
		"ingredients": query.List(func(r models.Recipe) []string { return r.Ingredients }),
		"tags":        query.List(func(r models.Recipe) []string { return r.Tags }),
		"createdAt":   query.Time(func(r models.Recipe) time.Time { return r.CreatedAt }),
	},
	Search: []string{"title", "cuisine", "ingredients", "tags"},
}

var recipeContract = transfer.Contract[models.Recipe]{
	Required: []string{"title"},
	Columns:  []string{"id", "title", "cuisine", "category", "cookTime", "servings", "difficulty", "ingredients", "tags", "instructions"},
	FromRow: func(row map[string]string) (models.Recipe, error) {
		cook, err := transfer.Int(row["cookTime"])
		if err != nil {
			return models.Recipe{}, err
		}
		servings, err := transfer.Int(row["servings"])
		if err != nil {
			return models.Recipe{}, err
		}
		return models.Recipe{
			Title:        row["title"],
			Cuisine:      row["cuisine"],
			Category:     row["category"],
			CookTime:     cook,
			Servings:     servings,
			Difficulty:   row["difficulty"],
			Ingredients:  transfer.SplitList(row["ingredients"]),
			Tags:         transfer.SplitList(row["tags"]),
			Instructions: row["instructions"],
		}, nil
	},
	ToRow: func(r models.Recipe) []string {
		return []string{r.ID, r.Title, r.Cuisine, r.Category, transfer.FormatInt(r.CookTime), transfer.FormatInt(r.Servings),
			r.Difficulty, transfer.JoinList(r.Ingredients), transfer.JoinList(r.Tags), r.Instructions}
	},
	Example: models.Recipe{
		Title:        "Tomato Soup",
		Cuisine:      "Italian",
		Category:     "Lunch",
		CookTime:     30,
		Servings:     4,
		Difficulty:   "Easy",
		Ingredients:  []string{"tomatoes", "onion", "stock"},
		Tags:         []string{"vegetarian"},
		Instructions: "Simmer everything, then blend.",
	},
}

// MealPlanSchema is the query schema of meal plans.
var MealPlanSchema = query.Schema[models.MealPlan]{
	Fields: map[string]query.Field[models.MealPlan]{
		"date":     query.Date(func(p models.MealPlan) string { return p.Date }),
		"slot":     query.Text(func(p models.MealPlan) string { return p.Slot }),
		"recipeId": query.Text(func(p models.MealPlan) string { return p.RecipeID }),
		"notes":    query.Text(func(p models.MealPlan) string { return p.Notes }),
	},
	Search: []string{"notes", "slot"},
}

var mealPlanContract = transfer.Contract[models.MealPlan]{
	Required: []string{"date", "recipeId"},
	Columns:  []string{"id", "date", "slot", "recipeId", "notes"},
	FromRow: func(row map[string]string) (models.MealPlan, error) {
		return models.MealPlan{Date: row["date"], Slot: row["slot"], RecipeID: row["recipeId"], Notes: row["notes"]}, nil
	},
	ToRow: func(p models.MealPlan) []string {
		return []string{p.ID, p.Date, p.Slot, p.RecipeID, p.Notes}
	},
	Example: models.MealPlan{Date: "2024-05-06", Slot: "dinner", RecipeID: "sample-curry", Notes: "double portion"},
}

var defaultRecipes = []models.Recipe{
	{
		Meta:         models.Meta{ID: "sample-curry"},
		Title:        "Thai Green Curry",
		Cuisine:      "Thai",
		Category:     "Dinner",
		CookTime:     25,
		Servings:     4,
		Difficulty:   "Medium",
		Ingredients:  []string{"green curry paste", "coconut milk", "chicken", "basil"},
		Tags:         []string{"spicy"},
		Instructions: "Fry the paste, add coconut milk and chicken, simmer and finish with basil.",
	},
	{
		Meta:         models.Meta{ID: "sample-toast"},
		Title:        "Avocado Toast",
		Cuisine:      "Modern",
		Category:     "Breakfast",
		CookTime:     5,
		Servings:     1,
		Difficulty:   "Easy",
		Ingredients:  []string{"bread", "avocado", "lemon"},
		Tags:         []string{"vegetarian", "quick"},
		Instructions: "Toast the bread and top with mashed avocado.",
	},
}

func newRecipes(medium kv.Medium, log *zap.Logger) *App {
	log = log.With(zap.String("app", RecipesApp))
	recipes := store.New(medium, store.Options[models.Recipe]{
		Key:      kv.Namespace(RecipesApp, "recipes"),
		Defaults: defaultRecipes,
		Update:   store.Upsert,
		Logger:   log,
	})
	plans := store.New(medium, store.Options[models.MealPlan]{
		Key:    kv.Namespace(RecipesApp, "mealPlans"),
		Update: store.Upsert,
		Logger: log,
	})
	store.Relate(recipes, plans, store.CascadeDelete, func(p models.MealPlan) string { return p.RecipeID })

	a := newApp(RecipesApp, medium, Settings{Title: "Recipe & Meal Planner", Locale: "en"}, log)
	a.add(Bind("recipes", recipes, RecipeSchema, recipeContract, nil))
	a.add(Bind("mealPlans", plans, MealPlanSchema, mealPlanContract, map[string]Ref[models.MealPlan]{
		"recipe": RefTo(recipes, func(p models.MealPlan) string { return p.RecipeID }),
	}))
	return a
}
