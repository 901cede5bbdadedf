package signals

import (
	"sort"
	"time"

	"github.com/matthewbaird/eventform/internal/activity"
	"github.com/matthewbaird/eventform/internal/event"
)

// Rule escalates a field once it collects Threshold entries of Kind that
// weigh at least MinWeight.
type Rule struct {
	Kind      event.Kind
	MinWeight Weight
	Threshold int
	Reason    string
}

// DefaultRules flag fields that keep failing validation or keep changing.
var DefaultRules = []Rule{
	{Kind: event.KindFieldErrorChanged, MinWeight: WeightFriction, Threshold: 3, Reason: "repeated validation errors"},
	{Kind: event.KindFieldChanged, MinWeight: WeightInfo, Threshold: 6, Reason: "value changed repeatedly"},
}

// FieldSummary counts what happened to one field.
type FieldSummary struct {
	Key       string `json:"key"`
	Changes   int    `json:"changes"`
	Errors    int    `json:"errors"`
	Touches   int    `json:"touches"`
	LastError string `json:"last_error,omitempty"`
}

// Escalation is a field that crossed a rule threshold.
type Escalation struct {
	FieldKey string `json:"field_key"`
	Reason   string `json:"reason"`
	Count    int    `json:"count"`
}

// Summary is the friction report of one form.
type Summary struct {
	FormID      string         `json:"form_id"`
	Entries     int            `json:"entries"`
	Since       time.Time      `json:"since,omitzero"`
	Until       time.Time      `json:"until,omitzero"`
	ByKind      map[string]int `json:"by_kind"`
	ByWeight    map[Weight]int `json:"by_weight"`
	Fields      []FieldSummary `json:"fields"`
	Escalations []Escalation   `json:"escalations,omitempty"`
}

// Aggregate builds the summary of entries, which may come in any order.
// Fields are listed by error count, then change count, then key.
func Aggregate(formID string, entries []activity.Entry, rules []Rule) Summary {
	s := Summary{
		FormID:   formID,
		Entries:  len(entries),
		ByKind:   make(map[string]int),
		ByWeight: make(map[Weight]int),
	}

	// Oldest first, so LastError is the most recent one.
	ordered := append([]activity.Entry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	fields := make(map[string]*FieldSummary)
	field := func(key string) *FieldSummary {
		fs, ok := fields[key]
		if !ok {
			fs = &FieldSummary{Key: key}
			fields[key] = fs
		}
		return fs
	}

	for _, e := range ordered {
		w := Classify(e)
		s.ByKind[e.Kind]++
		s.ByWeight[w]++
		if s.Since.IsZero() || e.OccurredAt.Before(s.Since) {
			s.Since = e.OccurredAt
		}
		if e.OccurredAt.After(s.Until) {
			s.Until = e.OccurredAt
		}
		if e.FieldKey == "" {
			continue
		}
		switch p := e.Payload.(type) {
		case event.FieldChanged:
			field(e.FieldKey).Changes++
		case event.FieldTouched:
			field(e.FieldKey).Touches++
		case event.FieldErrorChanged:
			if p.Error != "" {
				fs := field(e.FieldKey)
				fs.Errors++
				fs.LastError = p.Error
			}
		}
	}

	s.Fields = make([]FieldSummary, 0, len(fields))
	for _, fs := range fields {
		s.Fields = append(s.Fields, *fs)
	}
	sort.Slice(s.Fields, func(i, j int) bool {
		a, b := s.Fields[i], s.Fields[j]
		if a.Errors != b.Errors {
			return a.Errors > b.Errors
		}
		if a.Changes != b.Changes {
			return a.Changes > b.Changes
		}
		return a.Key < b.Key
	})

	s.Escalations = Evaluate(ordered, rules)
	return s
}

// Evaluate returns one escalation per field and rule whose threshold is met,
// ordered by rule and then field key.
func Evaluate(entries []activity.Entry, rules []Rule) []Escalation {
	var out []Escalation
	for _, rule := range rules {
		if rule.Threshold <= 0 {
			continue
		}
		counts := make(map[string]int)
		for _, e := range entries {
			if e.FieldKey == "" || e.Kind != string(rule.Kind) || !Classify(e).AtLeast(rule.MinWeight) {
				continue
			}
			counts[e.FieldKey]++
		}
		keys := make([]string, 0, len(counts))
		for k, n := range counts {
			if n >= rule.Threshold {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, Escalation{FieldKey: k, Reason: rule.Reason, Count: counts[k]})
		}
	}
	return out
}
