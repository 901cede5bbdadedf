// Package config loads the service and form configuration.
//
// The same Config can be written as CUE, YAML or JSON (comments allowed);
// Load picks the decoder from the file extension. CUE files are unified with
// the embedded #Config schema, so constraint violations are reported before
// anything is decoded.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/muhammadmuzzammil1998/jsonc"
	"sigs.k8s.io/yaml"

	"github.com/matthewbaird/eventform/internal/logging"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Log      logging.Config `json:"log"`
	Datasets DatasetsConfig `json:"datasets"`
	Form     FormConfig     `json:"form"`
}

// ServerConfig configures the HTTP surface and form sessions.
type ServerConfig struct {
	Port               int `json:"port,omitempty"`
	SessionIdleMinutes int `json:"session_idle_minutes,omitempty"`
	SessionMaxAgeHours int `json:"session_max_age_hours,omitempty"`
}

// DatasetsConfig configures where reference datasets come from.
// Keys are resource names: locations, programs, periods, prefixes, institutions.
type DatasetsConfig struct {
	URLs           map[string]string   `json:"urls,omitempty"`      // tried before the fallbacks
	Fallbacks      map[string][]string `json:"fallbacks,omitempty"` // replaces the built-in list per resource
	TimeoutSeconds int                 `json:"timeout_seconds,omitempty"`
	Cache          CacheConfig         `json:"cache"`
}

// CacheConfig configures the shared dataset cache.
type CacheConfig struct {
	Disabled bool    `json:"disabled,omitempty"`
	TTLHours float64 `json:"ttl_hours,omitempty"`
}

// FormConfig holds everything the form engine reads from configuration.
type FormConfig struct {
	DefaultCountry        string                  `json:"default_country,omitempty"`
	ApplicantType         string                  `json:"applicant_type,omitempty"`
	AttendeeTypes         []string                `json:"attendee_types,omitempty"`
	CollegeTypes          []string                `json:"college_types,omitempty"` // attendee types asked for their school
	AuthorizationField    string                  `json:"authorization_field,omitempty"`
	AuthorizationAccepted string                  `json:"authorization_accepted,omitempty"`
	Filters               map[string][]string     `json:"filters,omitempty"`  // field key → allow-list of names or codes
	Priority              map[string][]string     `json:"priority,omitempty"` // field key → substrings sorted first
	LevelLabels           map[string]string       `json:"level_labels,omitempty"`
	Rules                 map[string][]RuleConfig `json:"rules,omitempty"`
	Modes                 Modes                   `json:"modes"`
	TestData              map[string]string       `json:"test_data,omitempty"`
}

// RuleConfig overrides the validation chain of a field.
type RuleConfig struct {
	Kind    string `json:"kind"` // "required", "length", "format"
	Min     int    `json:"min,omitempty"`
	Max     int    `json:"max,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Message string `json:"message,omitempty"`
}

// Modes are the system-state switches of a form.
type Modes struct {
	Dev   bool `json:"dev,omitempty"`
	Test  bool `json:"test,omitempty"`
	Debug bool `json:"debug,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// CacheTTL returns the cache TTL as a duration.
func (c DatasetsConfig) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours * float64(time.Hour))
}

// Timeout returns the per-request dataset timeout.
func (c DatasetsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SessionIdle returns the idle timeout of a form session.
func (c ServerConfig) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// SessionMaxAge returns the absolute lifetime of a form session.
func (c ServerConfig) SessionMaxAge() time.Duration {
	return time.Duration(c.SessionMaxAgeHours) * time.Hour
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.SessionIdleMinutes == 0 {
		c.Server.SessionIdleMinutes = 30
	}
	if c.Server.SessionMaxAgeHours == 0 {
		c.Server.SessionMaxAgeHours = 24
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Datasets.TimeoutSeconds == 0 {
		c.Datasets.TimeoutSeconds = 15
	}
	if c.Datasets.Cache.TTLHours == 0 {
		c.Datasets.Cache.TTLHours = 24
	}

	f := &c.Form
	if f.DefaultCountry == "" {
		f.DefaultCountry = "COL"
	}
	if f.ApplicantType == "" {
		f.ApplicantType = "Applicant"
	}
	if len(f.AttendeeTypes) == 0 {
		f.AttendeeTypes = []string{"Applicant", "Student", "Parent", "Teacher", "Visitor"}
	}
	if len(f.CollegeTypes) == 0 {
		f.CollegeTypes = []string{"Applicant", "Student"}
	}
	if f.AuthorizationField == "" {
		f.AuthorizationField = "authorization"
	}
	if f.AuthorizationAccepted == "" {
		f.AuthorizationAccepted = "1"
	}
	if f.Priority == nil {
		f.Priority = map[string][]string{
			"country":    {"Colombia"},
			"department": {"Bogota"},
			"city":       {"Bogota"},
		}
	}
	if f.LevelLabels == nil {
		f.LevelLabels = map[string]string{
			"PREG": "Pregrado",
			"POSG": "Posgrado",
			"TEC":  "Técnico y tecnológico",
			"EDCO": "Educación continua",
		}
	}
}

// Load reads path, decodes it by extension, applies defaults and then
// environment overrides. An empty path yields Default() plus overrides.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if c, err = Decode(path, data); err != nil {
			return Config{}, err
		}
	}
	c.applyDefaults()
	if err := c.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Decode decodes data according to the extension of name. Defaults are not applied.
func Decode(name string, data []byte) (Config, error) {
	var c Config
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".cue":
		if err := decodeCUE(name, data, &c); err != nil {
			return Config{}, err
		}
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return Config{}, fmt.Errorf("decoding yaml config: %w", err)
		}
	case ".json", ".jsonc", "":
		dec := json.NewDecoder(strings.NewReader(string(jsonc.ToJSON(data))))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return Config{}, fmt.Errorf("decoding json config: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}
	return c, nil
}

func decodeCUE(name string, data []byte, c *Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	val := ctx.CompileBytes(data, cue.Filename(name))
	if err := val.Err(); err != nil {
		return fmt.Errorf("compiling %s: %w", name, err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validating %s: %w", name, err)
	}
	if err := unified.Decode(c); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if p := getenv("PORT"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", p, err)
		}
		c.Server.Port = v
	}
	if lvl := getenv("EVENTFORM_LOG_LEVEL"); lvl != "" {
		c.Log.Level = lvl
	}
	if dev := getenv("EVENTFORM_DEV_MODE"); dev != "" {
		v, err := strconv.ParseBool(dev)
		if err != nil {
			return fmt.Errorf("invalid EVENTFORM_DEV_MODE %q: %w", dev, err)
		}
		c.Form.Modes.Dev = v
	}
	if ttl := getenv("EVENTFORM_CACHE_TTL_HOURS"); ttl != "" {
		v, err := strconv.ParseFloat(ttl, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid EVENTFORM_CACHE_TTL_HOURS %q", ttl)
		}
		c.Datasets.Cache.TTLHours = v
	}
	return nil
}
