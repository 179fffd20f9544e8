// ABOUTME: Transition window math and visual effect evaluation
// ABOUTME: Pure functions producing opacity, scale, and translation per frame
package transition

// Kind names a transition style. The wire and document representation is
// the string itself.
type Kind string

const (
	Fade      Kind = "fade"
	Dissolve  Kind = "dissolve"
	ZoomIn    Kind = "zoom-in"
	ZoomOut   Kind = "zoom-out"
	WipeLeft  Kind = "wipe-left"
	WipeRight Kind = "wipe-right"
	WipeUp    Kind = "wipe-up"
	WipeDown  Kind = "wipe-down"
)

// Valid reports whether k is a known transition kind
func (k Kind) Valid() bool {
	switch k {
	case Fade, Dissolve, ZoomIn, ZoomOut, WipeLeft, WipeRight, WipeUp, WipeDown:
		return true
	}
	return false
}

// Phase distinguishes which transition window is being evaluated. Several
// kinds map to a different transform on the way in than on the way out.
type Phase int

const (
	In Phase = iota
	Out
)

// Effect is the visual override a transition contributes to one frame.
// Scale applies about the element center; the translation is in the
// element's own units and applies after scaling.
type Effect struct {
	Opacity    float64
	Scale      float64
	TranslateX float64
	TranslateY float64
}

// Identity is the no-transition effect
func Identity() Effect {
	return Effect{Opacity: 1, Scale: 1}
}

// InProgress returns the progress of an in-transition of duration d on an
// element starting at elStart. The window applies while elapsed < d;
// progress rises 0 to 1 across it.
func InProgress(elStart, d, t float64) (progress float64, active bool) {
	elapsed := t - elStart
	if d <= 0 || elapsed < 0 || elapsed >= d {
		return 1, false
	}
	return clamp01(elapsed / d), true
}

// OutProgress returns the progress of an out-transition of duration d on
// an element ending at elEnd. The window applies while remaining < d;
// progress falls 1 to 0, reaching 0 exactly at the element's end.
func OutProgress(elEnd, d, t float64) (progress float64, active bool) {
	remaining := elEnd - t
	if d <= 0 || remaining < 0 || remaining >= d {
		return 1, false
	}
	return clamp01(remaining / d), true
}

// Evaluate computes a transition's effect at progress q for an element of
// the given local size. q is clamped to [0,1]: 0 is fully transitioned
// out, 1 fully shown.
func Evaluate(kind Kind, phase Phase, q, w, h float64) Effect {
	q = clamp01(q)

	switch kind {
	case Fade, Dissolve:
		return Effect{Opacity: q, Scale: 1}

	case ZoomIn:
		if phase == Out {
			return Effect{Opacity: q, Scale: 1.5 - 0.5*q}
		}
		return Effect{Opacity: q, Scale: 0.5 + 0.5*q}

	case ZoomOut:
		if phase == Out {
			return Effect{Opacity: q, Scale: 0.5 + 0.5*q}
		}
		return Effect{Opacity: q, Scale: 1.5 - 0.5*q}

	case WipeLeft, WipeRight, WipeUp, WipeDown:
		sx, sy := wipeBase(kind, w, h)
		f := 1 - q
		if phase == Out {
			f = q - 1
		}
		return Effect{Opacity: 1, Scale: 1, TranslateX: sx * f, TranslateY: sy * f}
	}

	return Identity()
}

// wipeBase is the full-displacement vector per wipe direction: the element
// enters traveling toward the named direction and leaves continuing it
func wipeBase(kind Kind, w, h float64) (float64, float64) {
	switch kind {
	case WipeRight:
		return -w, 0
	case WipeLeft:
		return w, 0
	case WipeDown:
		return 0, -h
	case WipeUp:
		return 0, h
	}
	return 0, 0
}

// Combine merges simultaneous in- and out-effects. When the two windows
// overlap, the out-transition owns the transform and opacity is the
// minimum of the two. Nil arguments stand for "window not active".
func Combine(in, out *Effect) Effect {
	switch {
	case in == nil && out == nil:
		return Identity()
	case in == nil:
		return *out
	case out == nil:
		return *in
	}

	merged := *out
	if in.Opacity < merged.Opacity {
		merged.Opacity = in.Opacity
	}
	return merged
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
