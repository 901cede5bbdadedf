package form

import (
	"context"
	"slices"

	"github.com/matthewbaird/eventform/internal/cascade"
	"github.com/matthewbaird/eventform/internal/config"
	"github.com/matthewbaird/eventform/internal/dataset"
	"github.com/matthewbaird/eventform/internal/state"
	"github.com/matthewbaird/eventform/internal/textnorm"
	"github.com/matthewbaird/eventform/internal/types"
	"github.com/matthewbaird/eventform/internal/validation"
)

// Field keys of the registration form.
const (
	FirstName       = "first_name"
	LastName        = "last_name"
	DocumentType    = "document_type"
	DocumentNumber  = "document_number"
	Email           = "email"
	PhonePrefix     = "phone_prefix"
	Phone           = "phone"
	Country         = "country"
	Department      = "department"
	City            = "city"
	AttendeeType    = "attendee_type"
	College         = "college"
	AcademicLevel   = "academic_level"
	Faculty         = "faculty"
	Program         = "program"
	AdmissionPeriod = "admission_period"
)

// documentTypes are the identity documents accepted at registration.
var documentTypes = []types.Option{
	{Value: "CC", Label: "Cédula de ciudadanía"},
	{Value: "TI", Label: "Tarjeta de identidad"},
	{Value: "CE", Label: "Cédula de extranjería"},
	{Value: "PP", Label: "Pasaporte"},
}

// fieldSpecs lists the fields in display order. Dependent selects start
// hidden; the resolver shows them once they have options.
func fieldSpecs(authKey string) []state.FieldSpec {
	visible := func(key string) state.FieldSpec { return state.FieldSpec{Key: key, Visible: true} }
	hidden := func(key string) state.FieldSpec { return state.FieldSpec{Key: key} }
	return []state.FieldSpec{
		visible(FirstName),
		visible(LastName),
		visible(DocumentType),
		visible(DocumentNumber),
		visible(Email),
		visible(PhonePrefix),
		visible(Phone),
		visible(Country),
		hidden(Department),
		hidden(City),
		visible(AttendeeType),
		hidden(College),
		hidden(AcademicLevel),
		hidden(Faculty),
		hidden(Program),
		hidden(AdmissionPeriod),
		visible(authKey),
	}
}

// isDefaultCountry and isApplicant gate both the cascades and the matching
// conditional requirements, so a select is required exactly when it is shown.
func isDefaultCountry(cfg config.FormConfig) func(string) bool {
	return func(v string) bool { return textnorm.Equal(v, cfg.DefaultCountry) }
}

func isApplicant(cfg config.FormConfig) func(string) bool {
	return func(v string) bool { return textnorm.Equal(v, cfg.ApplicantType) }
}

func isOneOf(value string, candidates []string) bool {
	return slices.ContainsFunc(candidates, func(c string) bool { return textnorm.Equal(c, value) })
}

// edges wires the location, academic and institution cascades.
func edges(cfg config.FormConfig, cat *dataset.Catalog) []cascade.Edge {
	edge := func(parent string, children []string, load cascade.LoadFunc) cascade.Edge {
		child := children[0]
		return cascade.Edge{
			Parent:           parent,
			Children:         children,
			Load:             load,
			Filter:           cfg.Filters[child],
			Priority:         cfg.Priority[child],
			CollapseIfSingle: true,
		}
	}
	value := func(fields cascade.FieldReader, key string) string {
		v, _ := fields.Value(key)
		return v
	}

	country := edge(Country, []string{Department, City},
		func(ctx context.Context, v string, _ cascade.FieldReader) ([]types.Option, error) {
			return cat.Departments(ctx, v)
		})
	inCountry := isDefaultCountry(cfg)
	country.When = func(v string, _ cascade.FieldReader) bool { return inCountry(v) }

	department := edge(Department, []string{City},
		func(ctx context.Context, v string, fields cascade.FieldReader) ([]types.Option, error) {
			return cat.Cities(ctx, value(fields, Country), v)
		})

	academic := edge(AttendeeType, []string{AcademicLevel, Faculty, Program, AdmissionPeriod},
		func(ctx context.Context, _ string, _ cascade.FieldReader) ([]types.Option, error) {
			return cat.AcademicLevels(ctx)
		})
	applicant := isApplicant(cfg)
	academic.When = func(v string, _ cascade.FieldReader) bool { return applicant(v) }

	college := edge(AttendeeType, []string{College},
		func(ctx context.Context, _ string, _ cascade.FieldReader) ([]types.Option, error) {
			return cat.Institutions(ctx, "")
		})
	college.When = func(v string, _ cascade.FieldReader) bool { return isOneOf(v, cfg.CollegeTypes) }
	// A lone school is still asked for explicitly.
	college.CollapseIfSingle = false

	level := edge(AcademicLevel, []string{Faculty, Program, AdmissionPeriod},
		func(ctx context.Context, v string, _ cascade.FieldReader) ([]types.Option, error) {
			return cat.Faculties(ctx, v)
		})

	faculty := edge(Faculty, []string{Program, AdmissionPeriod},
		func(ctx context.Context, v string, fields cascade.FieldReader) ([]types.Option, error) {
			return cat.Programs(ctx, value(fields, AcademicLevel), v)
		})

	program := edge(Program, []string{AdmissionPeriod},
		func(ctx context.Context, _ string, fields cascade.FieldReader) ([]types.Option, error) {
			return cat.Periods(ctx, value(fields, AcademicLevel))
		})

	return []cascade.Edge{country, department, academic, college, level, faculty, program}
}

// roots are the selects populated on Start.
func roots(cfg config.FormConfig, cat *dataset.Catalog) []cascade.Source {
	root := func(key string, load func(context.Context) ([]types.Option, error)) cascade.Source {
		return cascade.Source{
			Key:      key,
			Load:     load,
			Filter:   cfg.Filters[key],
			Priority: cfg.Priority[key],
		}
	}
	static := func(opts []types.Option) func(context.Context) ([]types.Option, error) {
		return func(context.Context) ([]types.Option, error) { return opts, nil }
	}

	attendees := make([]types.Option, len(cfg.AttendeeTypes))
	for i, a := range cfg.AttendeeTypes {
		attendees[i] = types.Option{Value: a, Label: a}
	}

	return []cascade.Source{
		root(DocumentType, static(documentTypes)),
		root(PhonePrefix, cat.Prefixes),
		root(Country, cat.Countries),
		root(AttendeeType, static(attendees)),
	}
}

// validator builds the engine: built-in chains overlaid with configured ones,
// conditional requirements for the location and academic cascades.
func validator(cfg config.FormConfig) (*validation.Engine, error) {
	chains := validation.DefaultChains()
	overrides, err := validation.Compile(cfg.Rules)
	if err != nil {
		return nil, err
	}
	for k, chain := range overrides {
		chains[k] = chain
	}

	conditions := map[string]validation.Condition{
		Department: {Field: Country, Match: isDefaultCountry(cfg)},
		City:       {Field: Country, Match: isDefaultCountry(cfg)},
	}
	for _, k := range []string{AcademicLevel, Faculty, Program, AdmissionPeriod} {
		conditions[k] = validation.Condition{Field: AttendeeType, Match: isApplicant(cfg)}
	}

	return validation.NewEngine(validation.Options{
		Chains:                chains,
		Conditions:            conditions,
		AuthorizationKey:      cfg.AuthorizationField,
		AuthorizationAccepted: cfg.AuthorizationAccepted,
		DevBypass:             cfg.Modes.Dev,
	}), nil
}
