package validation

import (
	"strings"

	"github.com/matthewbaird/eventform/internal/types"
)

// Result is the outcome of validating one field.
type Result struct {
	Valid bool
	Error string
	Rule  Kind // the failing rule, empty when valid
}

// FormResult is the outcome of validating a whole form.
type FormResult struct {
	Valid   bool              `json:"valid"`
	Errors  map[string]string `json:"errors,omitempty"`
	Missing []string          `json:"missing,omitempty"` // keys failing REQUIRED, in form order
}

// Condition makes a field required only while another field holds a value.
// Match, when set, decides instead of an exact comparison with Equals.
type Condition struct {
	Field  string
	Equals string
	Match  func(value string) bool
}

// Holds reports whether the condition is met by the value of its field.
func (c Condition) Holds(value string) bool {
	if c.Match != nil {
		return c.Match(value)
	}
	return value == c.Equals
}

// Options configures an Engine.
type Options struct {
	Chains    map[string][]Rule
	Mandatory []string // required even without a chain
	// Conditions gate the requirement of a field on another field's value.
	Conditions map[string]Condition

	AuthorizationKey      string
	AuthorizationAccepted string
	AuthorizationMessage  string
	// DevBypass skips the authorization check.
	DevBypass bool
}

// Engine evaluates rule chains. It is safe for concurrent use once built.
type Engine struct {
	chains     map[string][]Rule
	mandatory  map[string]bool
	conditions map[string]Condition

	authKey      string
	authAccepted string
	authMessage  string
	devBypass    bool
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		chains:       make(map[string][]Rule, len(opts.Chains)),
		mandatory:    make(map[string]bool, len(opts.Mandatory)),
		conditions:   make(map[string]Condition, len(opts.Conditions)),
		authKey:      opts.AuthorizationKey,
		authAccepted: opts.AuthorizationAccepted,
		authMessage:  opts.AuthorizationMessage,
		devBypass:    opts.DevBypass,
	}
	for k, chain := range opts.Chains {
		e.chains[k] = append([]Rule(nil), chain...)
	}
	for _, k := range opts.Mandatory {
		e.mandatory[k] = true
	}
	for k, c := range opts.Conditions {
		e.conditions[k] = c
	}
	if e.authMessage == "" {
		e.authMessage = "You must accept the data processing authorization"
	}
	return e
}

// ValidateField runs the chain of key against value; the first failing rule
// wins. A field without a chain is only checked for presence, and only when
// it is mandatory. An empty value passes a chain that has no REQUIRED rule.
func (e *Engine) ValidateField(key, value string) Result {
	if key != "" && key == e.authKey {
		return e.validateAuthorization(value)
	}

	chain, ok := e.chains[key]
	if !ok {
		if r := Required(""); e.mandatory[key] && !r.Check(value) {
			return Result{Error: r.Message, Rule: KindRequired}
		}
		return Result{Valid: true}
	}

	if strings.TrimSpace(value) == "" && !hasRequired(chain) {
		return Result{Valid: true}
	}
	for _, r := range chain {
		if !r.Check(value) {
			return Result{Error: r.Message, Rule: r.Kind}
		}
	}
	return Result{Valid: true}
}

func (e *Engine) validateAuthorization(value string) Result {
	if e.devBypass || value == e.authAccepted {
		return Result{Valid: true}
	}
	return Result{Error: e.authMessage, Rule: KindRequired}
}

// Validates reports whether key has a chain or is mandatory.
func (e *Engine) Validates(key string) bool {
	_, ok := e.chains[key]
	return ok || e.mandatory[key] || (key != "" && key == e.authKey)
}

// ValidateForm validates every visible field that has a chain or is
// mandatory. Hidden fields are exempt, except the authorization field which
// is always checked. A conditional field is exempt while its condition does
// not hold.
func (e *Engine) ValidateForm(snap types.FormSnapshot) FormResult {
	res := FormResult{Valid: true, Errors: map[string]string{}}
	values := snap.Values()

	for _, f := range snap.Fields {
		isAuth := e.authKey != "" && f.Key == e.authKey
		if !isAuth {
			if !f.Visible || !e.Validates(f.Key) {
				continue
			}
			if c, ok := e.conditions[f.Key]; ok && !c.Holds(values[c.Field]) {
				continue
			}
		}

		r := e.ValidateField(f.Key, f.Value)
		if r.Valid {
			continue
		}
		res.Valid = false
		res.Errors[f.Key] = r.Error
		if r.Rule == KindRequired {
			res.Missing = append(res.Missing, f.Key)
		}
	}
	return res
}

func hasRequired(chain []Rule) bool {
	for _, r := range chain {
		if r.Kind == KindRequired {
			return true
		}
	}
	return false
}
