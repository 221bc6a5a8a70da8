package apps

import (
	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/models"
	"github.com/datavtar/localfirst/internal/query"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
	"go.uber.org/zap"
)

const ShopApp = "shop"

var productSchema = query.Schema[models.Product]{
	Fields: map[string]query.Field[models.Product]{
		"name":     query.Text(func(p models.Product) string { return p.Name }),
		"sku":      query.Text(func(p models.Product) string { return p.SKU }),
		"category": query.Text(func(p models.Product) string { return p.Category }),
		"price":    query.Number(func(p models.Product) float64 { return p.Price }),
		"stock":    query.Int(func(p models.Product) int { return p.Stock }),
		"rating": {Kind: query.KindNumber, Number: func(p models.Product) (float64, bool) {
			return p.Rating, p.Rating > 0
		}},
		"tags": query.List(func(p models.Product) []string { return p.Tags }),
	},
	Search: []string{"name", "sku", "tags"},
}

var productContract = transfer.Contract[models.Product]{
	Required: []string{"name", "price"},
	Columns:  []string{"id", "name", "sku", "category", "price", "stock", "rating", "tags", "description"},
	FromRow: func(row map[string]string) (models.Product, error) {
		price, err := transfer.Float(row["price"])
		if err != nil {
			return models.Product{}, err
		}
		stock, err := transfer.Int(row["stock"])
		if err != nil {
			return models.Product{}, err
		}
		rating, err := transfer.Float(row["rating"])
		if err != nil {
			return models.Product{}, err
		}
		return models.Product{
			Name: row["name"], SKU: row["sku"], Category: row["category"], Price: price, Stock: stock,
			Rating: rating, Tags: transfer.SplitList(row["tags"]), Description: row["description"],
		}, nil
	},
	ToRow: func(p models.Product) []string {
		return []string{p.ID, p.Name, p.SKU, p.Category, transfer.FormatFloat(p.Price), transfer.FormatInt(p.Stock),
			transfer.FormatFloat(p.Rating), transfer.JoinList(p.Tags), p.Description}
	},
	Example: models.Product{Name: "Canvas Tote", SKU: "TOTE-01", Category: "Bags", Price: 19.9, Stock: 25, Tags: []string{"cotton"}, Description: "Everyday bag."},
}

var defaultProducts = []models.Product{{
	Meta:        models.Meta{ID: "sample-mug"},
	Name:        "Ceramic Mug",
	SKU:         "MUG-01",
	Category:    "Kitchen",
	Price:       12.5,
	Stock:       40,
	Rating:      4.6,
	Tags:        []string{"gift"},
	Description: "A 350 ml stoneware mug.",
}}

func newShop(medium kv.Medium, log *zap.Logger) *App {
	log = log.With(zap.String("app", ShopApp))
	products := store.New(medium, store.Options[models.Product]{
		Key:      kv.Namespace(ShopApp, "products"),
		Defaults: defaultProducts,
		Update:   store.Upsert,
		Logger:   log,
	})
	a := newApp(ShopApp, medium, Settings{Title: "Storefront", Currency: "USD", Locale: "en"}, log)
	a.add(Bind("products", products, productSchema, productContract, nil))
	return a
}
