// Package dataset turns the raw reference datasets into the single Option
// shape the form engine works with. Every upstream variant is normalised
// here so nothing downstream branches on dataset layout.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/matthewbaird/eventform/internal/loader"
	"github.com/matthewbaird/eventform/internal/textnorm"
	"github.com/matthewbaird/eventform/internal/types"
)

// Source yields the raw JSON of a resource. *loader.Loader satisfies it.
type Source interface {
	Load(ctx context.Context, r loader.Resource) ([]byte, error)
}

// Catalog answers option queries over the reference datasets.
type Catalog struct {
	src         Source
	levelLabels map[string]string
	priorityISO map[string]bool

	locations memo[[]countryEntry]
	programs  memo[[]level]
}

// memo keeps the last parse of a dataset. The loader cache hands back the
// same byte slice until the entry expires or is invalidated, so a slice
// identity match means the parse is still current. Parsed values are shared
// and must not be mutated.
type memo[T any] struct {
	mu     sync.Mutex
	data   []byte
	val    T
	parses int
}

func (m *memo[T]) get(data []byte, parse func([]byte) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sameSlice(m.data, data) {
		return m.val, nil
	}
	val, err := parse(data)
	if err != nil {
		var zero T
		return zero, err
	}
	m.parses++
	m.data, m.val = data, val
	return val, nil
}

func sameSlice(a, b []byte) bool {
	return len(a) > 0 && len(a) == len(b) && &a[0] == &b[0]
}

// NewCatalog creates a catalog. levelLabels maps academic level codes to
// display names; unknown codes are shown as-is.
func NewCatalog(src Source, levelLabels map[string]string) *Catalog {
	return &Catalog{
		src:         src,
		levelLabels: levelLabels,
		priorityISO: map[string]bool{"CO": true},
	}
}

// Locations.

type city struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type department struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Cities []city `json:"cities"`
}

type country struct {
	Name        string       `json:"name"`
	Departments []department `json:"departments"`
}

type countryEntry struct {
	Code string
	country
}

func (c *Catalog) countries(ctx context.Context) ([]countryEntry, error) {
	data, err := c.src.Load(ctx, loader.Locations)
	if err != nil {
		return nil, err
	}
	return c.locations.get(data, parseLocations)
}

func parseLocations(data []byte) ([]countryEntry, error) {
	members, err := decodeOrdered(data)
	if err != nil {
		return nil, fmt.Errorf("parsing locations: %w", err)
	}
	out := make([]countryEntry, 0, len(members))
	for _, m := range members {
		var ct country
		if err := json.Unmarshal(m.Value, &ct); err != nil {
			return nil, fmt.Errorf("parsing locations %s: %w", m.Key, err)
		}
		if ct.Name == "" {
			ct.Name = m.Key
		}
		out = append(out, countryEntry{Code: m.Key, country: ct})
	}
	return out, nil
}

// Countries lists every country of the locations dataset in dataset order.
func (c *Catalog) Countries(ctx context.Context) ([]types.Option, error) {
	countries, err := c.countries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Option, len(countries))
	for i, ct := range countries {
		out[i] = types.Option{Value: ct.Code, Label: ct.Name}
	}
	return out, nil
}

func (c *Catalog) departments(ctx context.Context, countryCode string) ([]department, error) {
	countries, err := c.countries(ctx)
	if err != nil {
		return nil, err
	}
	for _, ct := range countries {
		if strings.EqualFold(ct.Code, countryCode) {
			return ct.Departments, nil
		}
	}
	return nil, nil
}

// Departments lists the departments of a country. An unknown country has none.
func (c *Catalog) Departments(ctx context.Context, countryCode string) ([]types.Option, error) {
	depts, err := c.departments(ctx, countryCode)
	if err != nil {
		return nil, err
	}
	out := make([]types.Option, len(depts))
	for i, d := range depts {
		out[i] = types.Option{Value: d.Code, Label: d.Name}
	}
	return out, nil
}

// Cities lists the cities of a department, matched by code or by name.
func (c *Catalog) Cities(ctx context.Context, countryCode, dept string) ([]types.Option, error) {
	depts, err := c.departments(ctx, countryCode)
	if err != nil {
		return nil, err
	}
	for _, d := range depts {
		if d.Code != dept && !textnorm.Equal(d.Name, dept) {
			continue
		}
		out := make([]types.Option, len(d.Cities))
		for i, ci := range d.Cities {
			out[i] = types.Option{Value: ci.Code, Label: ci.Name}
		}
		return out, nil
	}
	return nil, nil
}

// Programs.

type program struct {
	Code    string `json:"Codigo"`
	Name    string `json:"Nombre"`
	Faculty string `json:"facultad"`
	Level   string `json:"nivel"`
}

type faculty struct {
	Name     string
	Programs []program
}

type level struct {
	Code      string
	Faculties []faculty
}

// levels parses both program layouts: level → faculty → {Programas:[...]},
// or a flat array of programs carrying their faculty and level.
func (c *Catalog) levels(ctx context.Context) ([]level, error) {
	data, err := c.src.Load(ctx, loader.Programs)
	if err != nil {
		return nil, err
	}
	return c.programs.get(data, func(data []byte) ([]level, error) {
		if isArray(data) {
			return parseFlatPrograms(data)
		}
		return parseNestedPrograms(data)
	})
}

func parseNestedPrograms(data []byte) ([]level, error) {
	levelMembers, err := decodeOrdered(data)
	if err != nil {
		return nil, fmt.Errorf("parsing programs: %w", err)
	}
	out := make([]level, 0, len(levelMembers))
	for _, lm := range levelMembers {
		facultyMembers, err := decodeOrdered(lm.Value)
		if err != nil {
			return nil, fmt.Errorf("parsing programs %s: %w", lm.Key, err)
		}
		lv := level{Code: lm.Key}
		for _, fm := range facultyMembers {
			var body struct {
				Programas []program `json:"Programas"`
			}
			if err := json.Unmarshal(fm.Value, &body); err != nil {
				return nil, fmt.Errorf("parsing programs %s/%s: %w", lm.Key, fm.Key, err)
			}
			lv.Faculties = append(lv.Faculties, faculty{Name: fm.Key, Programs: body.Programas})
		}
		out = append(out, lv)
	}
	return out, nil
}

func parseFlatPrograms(data []byte) ([]level, error) {
	var flat []program
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("parsing programs: %w", err)
	}
	var out []level
	levelIdx := map[string]int{}
	facultyIdx := map[string]map[string]int{}
	for _, p := range flat {
		li, ok := levelIdx[p.Level]
		if !ok {
			li = len(out)
			levelIdx[p.Level] = li
			facultyIdx[p.Level] = map[string]int{}
			out = append(out, level{Code: p.Level})
		}
		fi, ok := facultyIdx[p.Level][p.Faculty]
		if !ok {
			fi = len(out[li].Faculties)
			facultyIdx[p.Level][p.Faculty] = fi
			out[li].Faculties = append(out[li].Faculties, faculty{Name: p.Faculty})
		}
		out[li].Faculties[fi].Programs = append(out[li].Faculties[fi].Programs, p)
	}
	return out, nil
}

func (c *Catalog) level(ctx context.Context, code string) (level, bool, error) {
	levels, err := c.levels(ctx)
	if err != nil {
		return level{}, false, err
	}
	for _, lv := range levels {
		if strings.EqualFold(lv.Code, code) {
			return lv, true, nil
		}
	}
	return level{}, false, nil
}

// AcademicLevels lists the levels of the programs dataset.
func (c *Catalog) AcademicLevels(ctx context.Context) ([]types.Option, error) {
	levels, err := c.levels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Option, len(levels))
	for i, lv := range levels {
		label := c.levelLabels[lv.Code]
		if label == "" {
			label = lv.Code
		}
		out[i] = types.Option{Value: lv.Code, Label: label}
	}
	return out, nil
}

// Faculties lists the faculties offering programs at a level. Faculties have
// no code upstream, so the name doubles as the value.
func (c *Catalog) Faculties(ctx context.Context, levelCode string) ([]types.Option, error) {
	lv, ok, err := c.level(ctx, levelCode)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]types.Option, len(lv.Faculties))
	for i, f := range lv.Faculties {
		out[i] = types.Option{Value: f.Name, Label: f.Name}
	}
	return out, nil
}

// Programs lists the programs of a faculty at a level.
func (c *Catalog) Programs(ctx context.Context, levelCode, facultyName string) ([]types.Option, error) {
	lv, ok, err := c.level(ctx, levelCode)
	if err != nil || !ok {
		return nil, err
	}
	for _, f := range lv.Faculties {
		if !textnorm.Equal(f.Name, facultyName) {
			continue
		}
		out := make([]types.Option, len(f.Programs))
		for i, p := range f.Programs {
			out[i] = types.Option{Value: p.Code, Label: p.Name}
		}
		return out, nil
	}
	return nil, nil
}

// Periods lists the admission periods of a level in dataset order.
func (c *Catalog) Periods(ctx context.Context, levelCode string) ([]types.Option, error) {
	data, err := c.src.Load(ctx, loader.Periods)
	if err != nil {
		return nil, err
	}
	levels, err := decodeOrdered(data)
	if err != nil {
		return nil, fmt.Errorf("parsing periods: %w", err)
	}
	for _, lm := range levels {
		if !strings.EqualFold(lm.Key, levelCode) {
			continue
		}
		periods, err := decodeOrdered(lm.Value)
		if err != nil {
			return nil, fmt.Errorf("parsing periods %s: %w", lm.Key, err)
		}
		out := make([]types.Option, len(periods))
		for i, p := range periods {
			out[i] = types.Option{Value: scalar(p.Value), Label: p.Key}
		}
		return out, nil
	}
	return nil, nil
}

// Prefixes.

type prefix struct {
	ISO2      string `json:"iso2"`
	PhoneCode string `json:"phoneCode"`
	NameES    string `json:"nameES"`
}

// Prefixes lists phone prefixes labelled with the country name. Colombia is
// flagged as priority.
func (c *Catalog) Prefixes(ctx context.Context) ([]types.Option, error) {
	data, err := c.src.Load(ctx, loader.Prefixes)
	if err != nil {
		return nil, err
	}
	var list []prefix
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing prefixes: %w", err)
	}
	out := make([]types.Option, 0, len(list))
	for _, p := range list {
		if p.PhoneCode == "" {
			continue
		}
		code := p.PhoneCode
		if !strings.HasPrefix(code, "+") {
			code = "+" + code
		}
		out = append(out, types.Option{
			Value:      code,
			Label:      fmt.Sprintf("%s (%s)", p.NameES, code),
			IsPriority: c.priorityISO[strings.ToUpper(p.ISO2)],
		})
	}
	return out, nil
}

// Institutions.

// institution accepts both the English and the upstream Spanish field names.
type institution struct {
	Code string
	Name string
	City string
}

func (i *institution) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := raw[k]; ok {
				if s := scalar(v); s != "" {
					return s
				}
			}
		}
		return ""
	}
	i.Code = pick("code", "Codigo")
	i.Name = pick("name", "Nombre")
	i.City = pick("city", "ciudad")
	return nil
}

// Institutions lists schools, optionally restricted to a city (matched by
// normalised name). An empty city returns every institution.
func (c *Catalog) Institutions(ctx context.Context, cityName string) ([]types.Option, error) {
	data, err := c.src.Load(ctx, loader.Institutions)
	if err != nil {
		return nil, err
	}
	var list []institution
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing institutions: %w", err)
	}
	out := make([]types.Option, 0, len(list))
	for _, inst := range list {
		if cityName != "" && !textnorm.Equal(inst.City, cityName) {
			continue
		}
		value := inst.Code
		if value == "" {
			value = inst.Name
		}
		out = append(out, types.Option{Value: value, Label: inst.Name})
	}
	return out, nil
}

// Options resolves a resource and its parent path the way the CLI and the
// dataset endpoint expose them: locations [country [department]], programs
// [level [faculty]], periods <level>, prefixes, institutions [city].
func (c *Catalog) Options(ctx context.Context, r loader.Resource, parents ...string) ([]types.Option, error) {
	arg := func(i int) string {
		if i < len(parents) {
			return parents[i]
		}
		return ""
	}
	switch r {
	case loader.Locations:
		switch len(parents) {
		case 0:
			return c.Countries(ctx)
		case 1:
			return c.Departments(ctx, arg(0))
		default:
			return c.Cities(ctx, arg(0), arg(1))
		}
	case loader.Programs:
		switch len(parents) {
		case 0:
			return c.AcademicLevels(ctx)
		case 1:
			return c.Faculties(ctx, arg(0))
		default:
			return c.Programs(ctx, arg(0), arg(1))
		}
	case loader.Periods:
		if len(parents) == 0 {
			return nil, fmt.Errorf("periods need an academic level")
		}
		return c.Periods(ctx, arg(0))
	case loader.Prefixes:
		return c.Prefixes(ctx)
	case loader.Institutions:
		return c.Institutions(ctx, arg(0))
	default:
		return nil, fmt.Errorf("unknown resource %q", r)
	}
}
