package form

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/eocert/console/types"
)

// ErrRequiredFields blocks a save with a blank EO number or year.
var ErrRequiredFields = errors.New("EO number & year required")

// Form keys, shared by the web form and the CLI key=value arguments.
const (
	KeyEONumber          = "eo_number"
	KeyYear              = "year"
	KeyMake              = "make"
	KeyModel             = "model"
	KeyManufacturer      = "manufacturer"
	KeyEngineSize        = "engine_size"
	KeyEvaporativeFamily = "evaporative_family"
	KeyTestGroup         = "test_group"
	KeyExhaustECS        = "exhaust_ecs"
	KeyVehicleClass      = "vehicle_class"
)

// CertificateForm is the editable text of a certificate.
type CertificateForm struct {
	EONumber          string
	Year              string
	Make              string
	Model             string
	Manufacturer      string
	EngineSize        string
	EvaporativeFamily string
	TestGroup         string
	ExhaustECS        string
	VehicleClass      string
}

// Input describes one rendered form control.
type Input struct {
	Key       string
	Label     string
	Value     string
	Required  bool
	Multiline bool
	Numeric   bool
}

// FromCertificate prefills a form for editing.
func FromCertificate(c types.Certificate) CertificateForm {
	return CertificateForm{
		EONumber:          c.EONumber,
		Year:              c.Year.String(),
		Make:              c.VehicleMake,
		Model:             c.VehicleModel,
		Manufacturer:      c.Manufacturer,
		EngineSize:        c.EngineSize,
		EvaporativeFamily: c.EvaporativeFamily,
		TestGroup:         c.TestGroup,
		ExhaustECS:        c.ExhaustECS,
		VehicleClass:      c.VehicleClass,
	}
}

// FromValues reads a submitted HTML form.
func FromValues(v url.Values) CertificateForm {
	var f CertificateForm
	for _, p := range f.pointers() {
		*p.dst = v.Get(p.key)
	}
	return f
}

// FromArgs reads key=value pairs.
func FromArgs(args []string) (CertificateForm, error) {
	var f CertificateForm
	targets := map[string]*string{}
	for _, p := range f.pointers() {
		targets[p.key] = p.dst
	}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return f, fmt.Errorf("expected key=value, got %q", arg)
		}
		dst, known := targets[strings.TrimSpace(key)]
		if !known {
			return f, fmt.Errorf("unknown certificate field %q", key)
		}
		*dst = value
	}
	return f, nil
}

// Merge overwrites f with every non-blank field of other.
func (f CertificateForm) Merge(other CertificateForm) CertificateForm {
	src := other.pointers()
	for i, p := range f.pointers() {
		if v := *src[i].dst; v != "" {
			*p.dst = v
		}
	}
	return f
}

type binding struct {
	key string
	dst *string
}

func (f *CertificateForm) pointers() []binding {
	return []binding{
		{KeyEONumber, &f.EONumber},
		{KeyYear, &f.Year},
		{KeyMake, &f.Make},
		{KeyModel, &f.Model},
		{KeyManufacturer, &f.Manufacturer},
		{KeyEngineSize, &f.EngineSize},
		{KeyEvaporativeFamily, &f.EvaporativeFamily},
		{KeyTestGroup, &f.TestGroup},
		{KeyExhaustECS, &f.ExhaustECS},
		{KeyVehicleClass, &f.VehicleClass},
	}
}

// Inputs lists the form controls in display order.
func (f CertificateForm) Inputs() []Input {
	return []Input{
		{Key: KeyEONumber, Label: "EO Number", Value: f.EONumber, Required: true},
		{Key: KeyYear, Label: "Year", Value: f.Year, Required: true, Numeric: true},
		{Key: KeyMake, Label: "Make", Value: f.Make},
		{Key: KeyModel, Label: "Model", Value: f.Model},
		{Key: KeyManufacturer, Label: "Manufacturer", Value: f.Manufacturer},
		{Key: KeyEngineSize, Label: "Engine Size", Value: f.EngineSize},
		{Key: KeyEvaporativeFamily, Label: "Evaporative Family", Value: f.EvaporativeFamily},
		{Key: KeyTestGroup, Label: "Test Group", Value: f.TestGroup},
		{Key: KeyExhaustECS, Label: "Exhaust ECS Special Features", Value: f.ExhaustECS, Multiline: true},
		{Key: KeyVehicleClass, Label: "Vehicle Class", Value: f.VehicleClass},
	}
}

// Certificate builds the request payload. A year that does not parse is
// sent as null.
func (f CertificateForm) Certificate() types.Certificate {
	return types.Certificate{
		EONumber:          f.EONumber,
		Year:              types.ParseYear(f.Year),
		VehicleMake:       f.Make,
		VehicleModel:      f.Model,
		Manufacturer:      f.Manufacturer,
		EngineSize:        f.EngineSize,
		EvaporativeFamily: f.EvaporativeFamily,
		TestGroup:         f.TestGroup,
		ExhaustECS:        f.ExhaustECS,
		VehicleClass:      f.VehicleClass,
	}
}

// Validate only checks that EO number and year are present.
func (f CertificateForm) Validate() error {
	c := f.Certificate()
	if strings.TrimSpace(c.EONumber) == "" || c.Year == 0 {
		return ErrRequiredFields
	}
	return nil
}
