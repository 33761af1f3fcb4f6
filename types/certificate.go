package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Wire labels used by the backend for certificate fields.
const (
	LabelEONumber          = "EO Number"
	LabelYear              = "Year"
	LabelVehicleMake       = "Vehicle Make"
	LabelVehicleModel      = "Vehicle Model"
	LabelManufacturer      = "Manufacturer"
	LabelEngineSize        = "Engine Size(L)"
	LabelEvaporativeFamily = "Evaporative Family"
	LabelTestGroup         = "Test Group"
	LabelExhaustECS        = "Exhaust Emission Control System (ECS)"
	LabelVehicleClass      = "Vehicle Class"
)

// Certificate is an executive order emissions certificate record.
// Fields are keyed on the wire by the human-readable labels the backend
// uses; the console only displays and submits snapshots of them.
type Certificate struct {
	// ID addresses the record for view, edit and delete calls.
	ID ID `json:"id,omitempty"`

	// EONumber is the executive order identifier.
	EONumber string `json:"EO Number"`

	// Year is the model year. Zero means unset and is sent as null.
	Year Year `json:"Year"`

	VehicleMake       string `json:"Vehicle Make"`
	VehicleModel      string `json:"Vehicle Model"`
	Manufacturer      string `json:"Manufacturer"`
	EngineSize        string `json:"Engine Size(L)"`
	EvaporativeFamily string `json:"Evaporative Family"`
	TestGroup         string `json:"Test Group"`

	// ExhaustECS describes the exhaust emission control system features.
	ExhaustECS string `json:"Exhaust Emission Control System (ECS)"`

	VehicleClass string `json:"Vehicle Class,omitempty"`
}

// Year is a model year decoded leniently from a JSON number, a numeric
// string or null.
type Year int

func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*y = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*y = ParseYear(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.New("year must be a number")
	}
	*y = Year(int(f))
	return nil
}

func (y Year) MarshalJSON() ([]byte, error) {
	if y == 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(y))), nil
}

func (y Year) String() string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(int(y))
}

// ParseYear converts user input to a Year. Anything that is not a leading
// integer yields zero, mirroring a blank field.
func ParseYear(raw string) Year {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		return 0
	}
	return Year(n)
}

// Field is one labelled value of a certificate, in display order.
type Field struct {
	Label string
	Value string
}

// Fields lists every certificate attribute with its display label.
func (c Certificate) Fields() []Field {
	return []Field{
		{Label: LabelEONumber, Value: c.EONumber},
		{Label: LabelYear, Value: c.Year.String()},
		{Label: "Make", Value: c.VehicleMake},
		{Label: "Model", Value: c.VehicleModel},
		{Label: LabelManufacturer, Value: c.Manufacturer},
		{Label: "Engine Size (L)", Value: c.EngineSize},
		{Label: LabelTestGroup, Value: c.TestGroup},
		{Label: LabelEvaporativeFamily, Value: c.EvaporativeFamily},
		{Label: "Exhaust ECS Features", Value: c.ExhaustECS},
		{Label: LabelVehicleClass, Value: c.VehicleClass},
	}
}

// CertificatePage is one window of a certificate listing.
type CertificatePage struct {
	Certificates []Certificate `json:"certificates"`
	Pagination   *Pagination   `json:"pagination,omitempty"`
}

// Pagination is the server-computed description of a result window.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	Total       int `json:"total"`
}

// Filter narrows certificate listings. Empty fields are not sent.
type Filter struct {
	Year     string
	Make     string
	Model    string
	EONumber string
}

// Values returns the non-empty filter fields keyed by query parameter name.
func (f Filter) Values() map[string]string {
	values := make(map[string]string, 4)
	add := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			values[key] = value
		}
	}
	add("year", f.Year)
	add("make", f.Make)
	add("model", f.Model)
	add("eo_number", f.EONumber)
	return values
}

// IsZero reports whether no filter field is set.
func (f Filter) IsZero() bool {
	return len(f.Values()) == 0
}
