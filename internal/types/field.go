// Package types provides the value types shared by the form engine packages:
// field state, form snapshots and selector options.
package types

// FieldState is the full state of a single form field.
// A field that is not Visible never carries an Error.
type FieldState struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Visible  bool   `json:"visible"`
	Disabled bool   `json:"disabled"`
	Touched  bool   `json:"touched"`
	Error    string `json:"error,omitempty"`
}

// HasError reports whether the field currently surfaces a validation error.
func (f FieldState) HasError() bool { return f.Error != "" }

// SystemState holds the form-wide flags that are not tied to a field.
type SystemState struct {
	IsSubmitting bool `json:"is_submitting"`
	DevMode      bool `json:"dev_mode"`
	TestMode     bool `json:"test_mode"`
	DebugMode    bool `json:"debug_mode"`
}

// FormSnapshot is a point-in-time copy of every field in construction order.
type FormSnapshot struct {
	Fields []FieldState `json:"fields"`
	System SystemState  `json:"system"`
}

// Field returns the state of key, or false if the snapshot has no such field.
func (s FormSnapshot) Field(key string) (FieldState, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldState{}, false
}

// Value returns the value of key, or "" when the field is unknown.
func (s FormSnapshot) Value(key string) string {
	f, _ := s.Field(key)
	return f.Value
}

// Values returns the key→value map of the snapshot.
func (s FormSnapshot) Values() map[string]string {
	out := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Key] = f.Value
	}
	return out
}

// Option is one selectable entry of a select field, normalised from whatever
// shape the upstream dataset uses.
type Option struct {
	Value      string `json:"value"`
	Label      string `json:"label"`
	IsPriority bool   `json:"is_priority,omitempty"`
}

// OptionValues returns the values of opts in order.
func OptionValues(opts []Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Value
	}
	return out
}
