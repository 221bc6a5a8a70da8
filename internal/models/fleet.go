package models

// Vehicle is a fleet asset.
type Vehicle struct {
	Meta
	Plate    string  `json:"plate"`
	Make     string  `json:"make"`
	Model    string  `json:"model"`
	Type     string  `json:"type"`   // truck, van, car
	Status   string  `json:"status"` // active, maintenance, retired
	Capacity float64 `json:"capacity"`
	Mileage  int     `json:"mileage"`
}

// WithMeta implements Entity.
func (v Vehicle) WithMeta(m Meta) Vehicle {
	v.Meta = m
	return v
}

// Driver operates vehicles.
type Driver struct {
	Meta
	Name    string `json:"name"`
	License string `json:"license"`
	Phone   string `json:"phone"`
	Status  string `json:"status"` // available, on_trip, off_duty
}

// WithMeta implements Entity.
func (d Driver) WithMeta(m Meta) Driver {
	d.Meta = m
	return d
}

// Shipment moves cargo with a vehicle and driver. VehicleID and DriverID may
// point at removed entities; consumers resolve them as missing.
type Shipment struct {
	Meta
	Reference   string  `json:"reference"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	VehicleID   string  `json:"vehicleId"`
	DriverID    string  `json:"driverId"`
	Status      string  `json:"status"` // pending, in_transit, delivered
	DueDate     string  `json:"dueDate"`
	Weight      float64 `json:"weight"`
}

// WithMeta implements Entity.
func (s Shipment) WithMeta(m Meta) Shipment {
	s.Meta = m
	return s
}
