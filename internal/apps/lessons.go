package apps

import (
	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/models"
	"github.com/datavtar/localfirst/internal/query"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
	"go.uber.org/zap"
)

const LessonsApp = "lessons"

var lessonSchema = query.Schema[models.LessonPlan]{
	Fields: map[string]query.Field[models.LessonPlan]{
		"title":      query.Text(func(l models.LessonPlan) string { return l.Title }),
		"subject":    query.Text(func(l models.LessonPlan) string { return l.Subject }),
		"grade":      query.Text(func(l models.LessonPlan) string { return l.Grade }),
		"status":     query.Text(func(l models.LessonPlan) string { return l.Status }),
		"date":       query.Date(func(l models.LessonPlan) string { return l.Date }),
		"duration":   query.Int(func(l models.LessonPlan) int { return l.Duration }),
		"objectives": query.List(func(l models.LessonPlan) []string { return l.Objectives }),
		"materials":  query.List(func(l models.LessonPlan) []string { return l.Materials }),
	},
	Search: []string{"title", "subject", "objectives"},
}

var lessonContract = transfer.Contract[models.LessonPlan]{
	Required: []string{"title", "subject"},
	Columns:  []string{"id", "title", "subject", "grade", "duration", "date", "status", "objectives", "materials", "notes"},
	FromRow: func(row map[string]string) (models.LessonPlan, error) {
		d, err := transfer.Int(row["duration"])
		if err != nil {
			return models.LessonPlan{}, err
		}
		return models.LessonPlan{
			Title:      row["title"],
			Subject:    row["subject"],
			Grade:      row["grade"],
			Duration:   d,
			Date:       row["date"],
			Status:     row["status"],
			Objectives: transfer.SplitList(row["objectives"]),
			Materials:  transfer.SplitList(row["materials"]),
			Notes:      row["notes"],
		}, nil
	},
	ToRow: func(l models.LessonPlan) []string {
		return []string{l.ID, l.Title, l.Subject, l.Grade, transfer.FormatInt(l.Duration), l.Date, l.Status,
			transfer.JoinList(l.Objectives), transfer.JoinList(l.Materials), l.Notes}
	},
	Example: models.LessonPlan{
		Title:      "Fractions",
		Subject:    "Mathematics",
		Grade:      "5",
		Duration:   45,
		Date:       "2024-09-02",
		Status:     "draft",
		Objectives: []string{"compare fractions", "add like denominators"},
		Materials:  []string{"fraction strips"},
	},
}

func newLessons(medium kv.Medium, log *zap.Logger) *App {
	log = log.With(zap.String("app", LessonsApp))
	lessons := store.New(medium, store.Options[models.LessonPlan]{
		Key:    kv.Namespace(LessonsApp, "lessons"),
		Update: store.Strict,
		Logger: log,
	})
	a := newApp(LessonsApp, medium, Settings{Title: "Lesson Planner", Locale: "en"}, log)
	a.add(Bind("lessons", lessons, lessonSchema, lessonContract, nil))
	return a
}
