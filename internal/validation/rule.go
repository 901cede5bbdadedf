// Package validation evaluates per-field rule chains and whole-form
// requirements. It holds no form state: every call takes the values it
// checks and returns a structured result.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/matthewbaird/eventform/internal/config"
)

// Kind names a rule type.
type Kind string

const (
	KindRequired Kind = "required"
	KindLength   Kind = "length"
	KindFormat   Kind = "format"
)

// Rule is one check in a field's chain.
type Rule struct {
	Kind    Kind
	Min     int // LENGTH only; runes after trimming
	Max     int // LENGTH only; 0 means unbounded
	Pattern *regexp.Regexp
	Message string
}

// Required fails on values that are empty after trimming.
func Required(msg string) Rule {
	if msg == "" {
		msg = "This field is required"
	}
	return Rule{Kind: KindRequired, Message: msg}
}

// Length bounds the trimmed rune count. max 0 leaves the upper bound open.
func Length(min, max int, msg string) Rule {
	if msg == "" {
		switch {
		case max > 0:
			msg = fmt.Sprintf("Must be between %d and %d characters", min, max)
		default:
			msg = fmt.Sprintf("Must be at least %d characters", min)
		}
	}
	return Rule{Kind: KindLength, Min: min, Max: max, Message: msg}
}

// Format matches the trimmed value against pattern. It panics on an invalid
// pattern, like regexp.MustCompile; use Compile for configured patterns.
func Format(pattern, msg string) Rule {
	if msg == "" {
		msg = "Invalid format"
	}
	return Rule{Kind: KindFormat, Pattern: regexp.MustCompile(pattern), Message: msg}
}

// Check reports whether value passes the rule.
func (r Rule) Check(value string) bool {
	v := strings.TrimSpace(value)
	switch r.Kind {
	case KindRequired:
		return v != ""
	case KindLength:
		n := utf8.RuneCountInString(v)
		if n < r.Min {
			return false
		}
		return r.Max <= 0 || n <= r.Max
	case KindFormat:
		return r.Pattern == nil || r.Pattern.MatchString(v)
	default:
		return true
	}
}

// Compile turns configured rule chains into rules.
func Compile(cfg map[string][]config.RuleConfig) (map[string][]Rule, error) {
	out := make(map[string][]Rule, len(cfg))
	for key, chain := range cfg {
		rules := make([]Rule, 0, len(chain))
		for i, rc := range chain {
			r, err := compileRule(rc)
			if err != nil {
				return nil, fmt.Errorf("rule %d of %s: %w", i, key, err)
			}
			rules = append(rules, r)
		}
		out[key] = rules
	}
	return out, nil
}

func compileRule(rc config.RuleConfig) (Rule, error) {
	switch Kind(strings.ToLower(rc.Kind)) {
	case KindRequired:
		return Required(rc.Message), nil
	case KindLength:
		if rc.Max > 0 && rc.Max < rc.Min {
			return Rule{}, fmt.Errorf("length max %d below min %d", rc.Max, rc.Min)
		}
		return Length(rc.Min, rc.Max, rc.Message), nil
	case KindFormat:
		re, err := regexp.Compile(rc.Pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("format pattern: %w", err)
		}
		msg := rc.Message
		if msg == "" {
			msg = "Invalid format"
		}
		return Rule{Kind: KindFormat, Pattern: re, Message: msg}, nil
	default:
		return Rule{}, fmt.Errorf("unknown rule kind %q", rc.Kind)
	}
}

var (
	namePattern   = `^[\p{L}][\p{L} '.\-]*$`
	emailPattern  = `^[^\s@]+@[^\s@]+\.[^\s@]+$`
	digitsPattern = `^[0-9]+$`
)

// DefaultChains returns the built-in rule chains of the registration form.
func DefaultChains() map[string][]Rule {
	return map[string][]Rule{
		"first_name": {
			Required(""),
			Length(2, 50, ""),
			Format(namePattern, "Only letters are allowed"),
		},
		"last_name": {
			Required(""),
			Length(2, 50, ""),
			Format(namePattern, "Only letters are allowed"),
		},
		"email": {
			Required(""),
			Format(emailPattern, "Enter a valid email address"),
			Length(0, 100, ""),
		},
		"phone_prefix": {Required("")},
		"phone": {
			Required(""),
			Format(digitsPattern, "Only digits are allowed"),
			Length(7, 15, ""),
		},
		"document_type": {Required("")},
		"document_number": {
			Required(""),
			Format(digitsPattern, "Only digits are allowed"),
			Length(6, 18, ""),
		},
		"country":          {Required("")},
		"department":       {Required("")},
		"city":             {Required("")},
		"attendee_type":    {Required("")},
		"academic_level":   {Required("")},
		"faculty":          {Required("")},
		"program":          {Required("")},
		"admission_period": {Required("")},
	}
}
