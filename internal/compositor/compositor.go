// ABOUTME: Render compositor producing per-frame layer descriptors
// ABOUTME: Layers merge geometry, transitions, and visual filter stacks
package compositor

import (
	"fmt"

	"github.com/Previz-Studio/previz-go/internal/geometry"
	"github.com/Previz-Studio/previz-go/internal/timeline"
	"github.com/Previz-Studio/previz-go/internal/transition"
)

// Layer is the render descriptor for one element in one frame. The
// engine never rasterizes; presentation layers consume these.
type Layer struct {
	ElementID string               `json:"elementId"`
	Kind      timeline.ElementKind `json:"kind"`

	// Post-transition placement on the canvas. FlipX/FlipY ask the
	// presentation layer to mirror the content about the rect center.
	Rect     geometry.Rect `json:"rect"`
	Rotation float64       `json:"rotation,omitempty"`
	FlipX    bool          `json:"flipX,omitempty"`
	FlipY    bool          `json:"flipY,omitempty"`
	Opacity  float64       `json:"opacity"`
	ZIndex   int           `json:"zIndex"`

	// Media-local time the element's content should show
	SourceTime float64 `json:"sourceTime"`

	// Content payloads
	AssetID string  `json:"assetId,omitempty"`
	Text    string  `json:"text,omitempty"`
	FontPx  float64 `json:"fontPx,omitempty"`
	ToneHz  float64 `json:"toneHz,omitempty"`
	Color   string  `json:"color,omitempty"`

	// Appearance
	Filters   []string `json:"filters,omitempty"`
	BlendMode string   `json:"blendMode,omitempty"`
}

// Frame is one complete render descriptor: every visible layer at time
// Time, ordered back to front.
type Frame struct {
	Time    float64 `json:"time"`
	CanvasW float64 `json:"canvasW"`
	CanvasH float64 `json:"canvasH"`
	Layers  []Layer `json:"layers"`
}

// Build composes the frame for time t. Layer order is ascending ZIndex
// with insertion order preserved on ties, so a frame rebuilt from the
// same sequence never reshuffles. Hidden elements and fully transparent
// layers are dropped.
func Build(seq *timeline.Sequence, t float64) Frame {
	frame := Frame{
		Time:    t,
		CanvasW: seq.CanvasW,
		CanvasH: seq.CanvasH,
	}

	for _, el := range seq.SortedByZ(seq.ActiveAt(t)) {
		layer, visible := buildLayer(el, t)
		if visible {
			frame.Layers = append(frame.Layers, layer)
		}
	}
	return frame
}

func buildLayer(el *timeline.Element, t float64) (Layer, bool) {
	eff := evaluateTransitions(el, t)

	opacity := clamp01(el.Opacity) * clamp01(eff.Opacity)
	if opacity <= 0 {
		return Layer{}, false
	}

	return Layer{
		ElementID:  el.ID,
		Kind:       el.Kind,
		Rect:       transformRect(el.Rect, eff),
		Rotation:   el.Rotation,
		FlipX:      el.FlipX,
		FlipY:      el.FlipY,
		Opacity:    opacity,
		ZIndex:     el.ZIndex,
		SourceTime: el.LocalMediaTime(t),
		AssetID:    el.AssetID,
		Text:       el.Text,
		FontPx:     el.FontPx,
		ToneHz:     el.ToneHz,
		Color:      el.Visual.Color,
		Filters:    filterStack(el.Visual),
		BlendMode:  el.Visual.BlendMode,
	}, true
}

// evaluateTransitions resolves the element's in- and out-windows at t and
// merges them. Unknown transition kinds are ignored rather than erroring
// a whole frame.
func evaluateTransitions(el *timeline.Element, t float64) transition.Effect {
	var in, out *transition.Effect

	if spec := el.TransitionIn; spec != nil && spec.Kind.Valid() {
		if q, active := transition.InProgress(el.Start, spec.Duration, t); active {
			e := transition.Evaluate(spec.Kind, transition.In, q, el.Rect.W, el.Rect.H)
			in = &e
		}
	}
	if spec := el.TransitionOut; spec != nil && spec.Kind.Valid() {
		if q, active := transition.OutProgress(el.End(), spec.Duration, t); active {
			e := transition.Evaluate(spec.Kind, transition.Out, q, el.Rect.W, el.Rect.H)
			out = &e
		}
	}
	return transition.Combine(in, out)
}

// transformRect applies the transition transform: scale about the rect
// center, then translate
func transformRect(r geometry.Rect, eff transition.Effect) geometry.Rect {
	scaled := r
	if eff.Scale != 1 {
		cx := r.X + r.W/2
		cy := r.Y + r.H/2
		scaled.W = r.W * eff.Scale
		scaled.H = r.H * eff.Scale
		scaled.X = cx - scaled.W/2
		scaled.Y = cy - scaled.H/2
	}
	scaled.X += eff.TranslateX
	scaled.Y += eff.TranslateY
	return scaled
}

// filterStack renders the element's visual parameters as an ordered list
// of filter operations. Neutral values contribute nothing.
func filterStack(v timeline.VisualProps) []string {
	var filters []string
	if v.BlurPx > 0 {
		filters = append(filters, fmt.Sprintf("blur(%.1f)", v.BlurPx))
	}
	if v.Brightness > 0 && v.Brightness != 1 {
		filters = append(filters, fmt.Sprintf("brightness(%.2f)", v.Brightness))
	}
	if v.Contrast > 0 && v.Contrast != 1 {
		filters = append(filters, fmt.Sprintf("contrast(%.2f)", v.Contrast))
	}
	if v.Saturation > 0 && v.Saturation != 1 {
		filters = append(filters, fmt.Sprintf("saturate(%.2f)", v.Saturation))
	}
	if v.Shadow {
		filters = append(filters, "drop-shadow")
	}
	return filters
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
