// Package signals condenses a form's activity journal into friction
// signals: which fields users struggle with and where the form churns.
package signals

import (
	"github.com/matthewbaird/eventform/internal/activity"
	"github.com/matthewbaird/eventform/internal/event"
)

// Weight grades how much an entry says about user friction.
type Weight string

const (
	WeightInfo     Weight = "info"
	WeightNotable  Weight = "notable"
	WeightFriction Weight = "friction"
)

var weightRank = map[Weight]int{
	WeightInfo:     0,
	WeightNotable:  1,
	WeightFriction: 2,
}

// AtLeast reports whether w is as heavy as min.
func (w Weight) AtLeast(min Weight) bool {
	return weightRank[w] >= weightRank[min]
}

// Classify grades a journal entry. A surfaced validation error is friction;
// the form turning invalid, a reset, or a select losing its options is
// notable; everything else is info.
func Classify(e activity.Entry) Weight {
	switch p := e.Payload.(type) {
	case event.FieldErrorChanged:
		if p.Error != "" {
			return WeightFriction
		}
	case event.ValidationStateChanged:
		if !p.Valid {
			return WeightNotable
		}
	case event.StateReset:
		return WeightNotable
	case event.OptionsChanged:
		if len(p.Options) == 0 {
			return WeightNotable
		}
	}
	return WeightInfo
}
