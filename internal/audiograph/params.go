// ABOUTME: Desired per-element audio parameters and the ducking policy
// ABOUTME: Ducking is presence-triggered; the first active ducker wins
package audiograph

import "github.com/Previz-Studio/previz-go/internal/timeline"

// Params is the target state for one element's audio route
type Params struct {
	Gain       float64
	HighPassHz float64
	LowPassHz  float64
}

// DefaultParams is a unity route: full gain, both filters off
func DefaultParams() Params {
	return Params{
		Gain:       timeline.DefaultVolume,
		HighPassHz: timeline.DefaultHighPassHz,
		LowPassHz:  timeline.DefaultLowPassHz,
	}
}

// EffectiveParams computes the parameters an element's route should carry,
// given every element active at the current time in timeline order.
//
// Ducking scans the other active audio-bearing elements in input order and
// stops at the first one flagged as a ducking source: that source's
// threshold scales this element's gain. Later duckers are ignored, so two
// simultaneous sources never stack their factors. The flag is the trigger,
// not the source's signal, so a muted ducker still ducks.
func EffectiveParams(el *timeline.Element, active []*timeline.Element) Params {
	p := Params{
		Gain:       el.Audio.Volume,
		HighPassHz: el.Audio.HighPassHz,
		LowPassHz:  el.Audio.LowPassHz,
	}
	if p.HighPassHz < 0 {
		p.HighPassHz = timeline.DefaultHighPassHz
	}
	if p.LowPassHz <= 0 {
		p.LowPassHz = timeline.DefaultLowPassHz
	}
	if el.Audio.Muted || p.Gain < 0 {
		p.Gain = 0
	}

	for _, other := range active {
		if other.ID == el.ID || !other.Kind.HasAudio() {
			continue
		}
		if !other.Audio.Ducking {
			continue
		}
		factor := other.Audio.DuckingThreshold
		if factor <= 0 {
			factor = timeline.DefaultDuckingThreshold
		}
		p.Gain *= factor
		break
	}
	return p
}
