package apps

import (
	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/models"
	"github.com/datavtar/localfirst/internal/query"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
	"go.uber.org/zap"
)

const FleetApp = "fleet"

var vehicleSchema = query.Schema[models.Vehicle]{
	Fields: map[string]query.Field[models.Vehicle]{
		"plate":    query.Text(func(v models.Vehicle) string { return v.Plate }),
		"make":     query.Text(func(v models.Vehicle) string { return v.Make }),
		"model":    query.Text(func(v models.Vehicle) string { return v.Model }),
		"type":     query.Text(func(v models.Vehicle) string { return v.Type }),
		"status":   query.Text(func(v models.Vehicle) string { return v.Status }),
		"capacity": query.Number(func(v models.Vehicle) float64 { return v.Capacity }),
		"mileage":  query.Int(func(v models.Vehicle) int { return v.Mileage }),
	},
	Search: []string{"plate", "make", "model"},
}

var vehicleContract = transfer.Contract[models.Vehicle]{
	Required: []string{"plate"},
	Columns:  []string{"id", "plate", "make", "model", "type", "status", "capacity", "mileage"},
	FromRow: func(row map[string]string) (models.Vehicle, error) {
		capacity, err := transfer.Float(row["capacity"])
		if err != nil {
			return models.Vehicle{}, err
		}
		mileage, err := transfer.Int(row["mileage"])
		if err != nil {
			return models.Vehicle{}, err
		}
		return models.Vehicle{
			Plate: row["plate"], Make: row["make"], Model: row["model"], Type: row["type"],
			Status: row["status"], Capacity: capacity, Mileage: mileage,
		}, nil
	},
	ToRow: func(v models.Vehicle) []string {
		return []string{v.ID, v.Plate, v.Make, v.Model, v.Type, v.Status, transfer.FormatFloat(v.Capacity), transfer.FormatInt(v.Mileage)}
	},
	Example: models.Vehicle{Plate: "AB-123-CD", Make: "Volvo", Model: "FH16", Type: "truck", Status: "active", Capacity: 18.5, Mileage: 120000},
}

var driverSchema = query.Schema[models.Driver]{
	Fields: map[string]query.Field[models.Driver]{
		"name":    query.Text(func(d models.Driver) string { return d.Name }),
		"license": query.Text(func(d models.Driver) string { return d.License }),
		"phone":   query.Text(func(d models.Driver) string { return d.Phone }),
		"status":  query.Text(func(d models.Driver) string { return d.Status }),
	},
	Search: []string{"name", "license"},
}

var driverContract = transfer.Contract[models.Driver]{
	Required: []string{"name", "license"},
	Columns:  []string{"id", "name", "license", "phone", "status"},
	FromRow: func(row map[string]string) (models.Driver, error) {
		return models.Driver{Name: row["name"], License: row["license"], Phone: row["phone"], Status: row["status"]}, nil
	},
	ToRow: func(d models.Driver) []string {
		return []string{d.ID, d.Name, d.License, d.Phone, d.Status}
	},
	Example: models.Driver{Name: "Jamie Doe", License: "C-998877", Phone: "+1 555 0100", Status: "available"},
}

var shipmentSchema = query.Schema[models.Shipment]{
	Fields: map[string]query.Field[models.Shipment]{
		"reference":   query.Text(func(s models.Shipment) string { return s.Reference }),
		"origin":      query.Text(func(s models.Shipment) string { return s.Origin }),
		"destination": query.Text(func(s models.Shipment) string { return s.Destination }),
		"vehicleId":   query.Text(func(s models.Shipment) string { return s.VehicleID }),
		"driverId":    query.Text(func(s models.Shipment) string { return s.DriverID }),
		"status":      query.Text(func(s models.Shipment) string { return s.Status }),
		"dueDate":     query.Date(func(s models.Shipment) string { return s.DueDate }),
		"weight":      query.Number(func(s models.Shipment) float64 { return s.Weight }),
	},
	Search: []string{"reference", "origin", "destination"},
}

var shipmentContract = transfer.Contract[models.Shipment]{
	Required: []string{"reference", "origin", "destination"},
	Columns:  []string{"id", "reference", "origin", "destination", "vehicleId", "driverId", "status", "dueDate", "weight"},
	FromRow: func(row map[string]string) (models.Shipment, error) {
		w, err := transfer.Float(row["weight"])
		if err != nil {
			return models.Shipment{}, err
		}
		return models.Shipment{
			Reference: row["reference"], Origin: row["origin"], Destination: row["destination"],
			VehicleID: row["vehicleId"], DriverID: row["driverId"], Status: row["status"],
			DueDate: row["dueDate"], Weight: w,
		}, nil
	},
	ToRow: func(s models.Shipment) []string {
		return []string{s.ID, s.Reference, s.Origin, s.Destination, s.VehicleID, s.DriverID, s.Status, s.DueDate, transfer.FormatFloat(s.Weight)}
	},
	Example: models.Shipment{Reference: "SHP-0001", Origin: "Rotterdam", Destination: "Berlin", Status: "pending", DueDate: "2024-06-01", Weight: 7.2},
}

// Shipments keep their vehicle and driver ids when either is removed; the
// references resolve as missing.
func newFleet(medium kv.Medium, log *zap.Logger) *App {
	log = log.With(zap.String("app", FleetApp))
	key := func(kind string) string { return kv.Namespace(FleetApp, kind) }
	vehicles := store.New(medium, store.Options[models.Vehicle]{Key: key("vehicles"), Update: store.Strict, Logger: log})
	drivers := store.New(medium, store.Options[models.Driver]{Key: key("drivers"), Update: store.Strict, Logger: log})
	shipments := store.New(medium, store.Options[models.Shipment]{Key: key("shipments"), Update: store.Strict, Logger: log})

	vehicleOf := func(s models.Shipment) string { return s.VehicleID }
	driverOf := func(s models.Shipment) string { return s.DriverID }
	store.Relate(vehicles, shipments, store.Dangle, vehicleOf)
	store.Relate(drivers, shipments, store.Dangle, driverOf)

	a := newApp(FleetApp, medium, Settings{Title: "Fleet Admin", Locale: "en", Extra: map[string]string{"distanceUnit": "km"}}, log)
	a.add(Bind("vehicles", vehicles, vehicleSchema, vehicleContract, nil))
	a.add(Bind("drivers", drivers, driverSchema, driverContract, nil))
	a.add(Bind("shipments", shipments, shipmentSchema, shipmentContract, map[string]Ref[models.Shipment]{
		"vehicle": RefTo(vehicles, vehicleOf),
		"driver":  RefTo(drivers, driverOf),
	}))
	return a
}
