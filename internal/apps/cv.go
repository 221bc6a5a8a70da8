package apps

import (
	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/models"
	"github.com/datavtar/localfirst/internal/query"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
	"go.uber.org/zap"
)

const CVApp = "cv"

var experienceSchema = query.Schema[models.Experience]{
	Fields: map[string]query.Field[models.Experience]{
		"company":   query.Text(func(e models.Experience) string { return e.Company }),
		"role":      query.Text(func(e models.Experience) string { return e.Role }),
		"location":  query.Text(func(e models.Experience) string { return e.Location }),
		"startDate": query.Date(func(e models.Experience) string { return e.StartDate }),
		"endDate":   query.Date(func(e models.Experience) string { return e.EndDate }),
		"summary":   query.Text(func(e models.Experience) string { return e.Summary }),
		"skills":    query.List(func(e models.Experience) []string { return e.Skills }),
	},
	Search: []string{"company", "role", "summary", "skills"},
}

var experienceContract = transfer.Contract[models.Experience]{
	Required: []string{"company", "role", "startDate"},
	Columns:  []string{"id", "company", "role", "location", "startDate", "endDate", "summary", "skills"},
	FromRow: func(row map[string]string) (models.Experience, error) {
		return models.Experience{
			Company:   row["company"],
			Role:      row["role"],
			Location:  row["location"],
			StartDate: row["startDate"],
			EndDate:   row["endDate"],
			Summary:   row["summary"],
			Skills:    transfer.SplitList(row["skills"]),
		}, nil
	},
	ToRow: func(e models.Experience) []string {
		return []string{e.ID, e.Company, e.Role, e.Location, e.StartDate, e.EndDate, e.Summary, transfer.JoinList(e.Skills)}
	},
	Example: models.Experience{
		Company:   "Acme Corp",
		Role:      "Backend Engineer",
		Location:  "Remote",
		StartDate: "2021-03-01",
		Summary:   "Built the order pipeline.",
		Skills:    []string{"Go", "PostgreSQL"},
	},
}

func newCV(medium kv.Medium, log *zap.Logger) *App {
	log = log.With(zap.String("app", CVApp))
	experience := store.New(medium, store.Options[models.Experience]{
		Key:    kv.Namespace(CVApp, "experience"),
		Update: store.Upsert,
		Logger: log,
	})
	a := newApp(CVApp, medium, Settings{Title: "Curriculum Vitae", Locale: "en"}, log)
	a.add(Bind("experience", experience, experienceSchema, experienceContract, nil))
	return a
}
