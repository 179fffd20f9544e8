// ABOUTME: Timeline element model with placement, audio, and transition properties
// ABOUTME: Elements are the scheduling unit for playback sync and compositing
package timeline

import (
	"github.com/google/uuid"

	"github.com/Previz-Studio/previz-go/internal/geometry"
	"github.com/Previz-Studio/previz-go/internal/transition"
)

// ElementKind identifies what an element renders and whether it carries audio
type ElementKind string

const (
	KindVideo      ElementKind = "video"
	KindAudio      ElementKind = "audio"
	KindImage      ElementKind = "image"
	KindText       ElementKind = "text"
	KindShape      ElementKind = "shape"
	KindProcedural ElementKind = "procedural"
)

// HasAudio reports whether elements of this kind feed the audio graph
func (k ElementKind) HasAudio() bool {
	switch k {
	case KindVideo, KindAudio, KindProcedural:
		return true
	}
	return false
}

// Audio format defaults. A low-pass at 20kHz and a high-pass at 0Hz are
// both effectively "filter off".
const (
	DefaultVolume           = 1.0
	DefaultHighPassHz       = 0.0
	DefaultLowPassHz        = 20000.0
	DefaultDuckingThreshold = 0.2
)

// AudioProps holds the per-element audio routing parameters.
//
// Ducking marks this element as a dominant source: while it is active,
// every other audible element is attenuated to DuckingThreshold of its
// own volume. A threshold of 0 means "use the default".
type AudioProps struct {
	Volume           float64 `json:"volume"`
	Muted            bool    `json:"muted,omitempty"`
	HighPassHz       float64 `json:"highPassHz,omitempty"`
	LowPassHz        float64 `json:"lowPassHz,omitempty"`
	Ducking          bool    `json:"ducking,omitempty"`
	DuckingThreshold float64 `json:"duckingThreshold,omitempty"`
}

// VisualProps holds per-element appearance parameters. The renderer folds
// them into its filter stack; values of 0 mean "unset, neutral".
type VisualProps struct {
	Color      string  `json:"color,omitempty"` // fill or tint
	BlendMode  string  `json:"blendMode,omitempty"`
	BlurPx     float64 `json:"blurPx,omitempty"`
	Brightness float64 `json:"brightness,omitempty"` // 1 = neutral
	Contrast   float64 `json:"contrast,omitempty"`   // 1 = neutral
	Saturation float64 `json:"saturation,omitempty"` // 1 = neutral
	Shadow     bool    `json:"shadow,omitempty"`
}

// TransitionSpec attaches a transition window to one end of an element
type TransitionSpec struct {
	Kind     transition.Kind `json:"kind"`
	Duration float64         `json:"duration"` // seconds
}

// Element is a single item placed on the timeline
type Element struct {
	ID      string      `json:"id"`
	Kind    ElementKind `json:"kind"`
	TrackID string      `json:"trackId"`
	Name    string      `json:"name,omitempty"`

	// Placement on the timeline, in seconds
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`

	// Offset into the source media at Start, and playback rate
	TrimStart float64 `json:"trimStart,omitempty"`
	Rate      float64 `json:"rate"`

	// Canvas placement. Rotation is degrees about the rect center;
	// FlipX/FlipY mirror the content about it.
	Rect     geometry.Rect `json:"rect"`
	Rotation float64       `json:"rotation,omitempty"`
	FlipX    bool          `json:"flipX,omitempty"`
	FlipY    bool          `json:"flipY,omitempty"`
	Opacity  float64       `json:"opacity"`
	ZIndex   int           `json:"zIndex"`
	Hidden   bool          `json:"hidden,omitempty"`

	// Content
	AssetID string  `json:"assetId,omitempty"`
	Text    string  `json:"text,omitempty"`
	FontPx  float64 `json:"fontPx,omitempty"`
	ToneHz  float64 `json:"toneHz,omitempty"` // procedural tone frequency

	Audio  AudioProps  `json:"audio"`
	Visual VisualProps `json:"visual"`

	TransitionIn  *TransitionSpec `json:"transitionIn,omitempty"`
	TransitionOut *TransitionSpec `json:"transitionOut,omitempty"`
}

// NewElement creates an element of the given kind with sane defaults
func NewElement(kind ElementKind, trackID string) *Element {
	return &Element{
		ID:      uuid.New().String(),
		Kind:    kind,
		TrackID: trackID,
		Rate:    1.0,
		Opacity: 1.0,
		Rect:    geometry.Rect{X: 0, Y: 0, W: 100, H: 100},
		Audio: AudioProps{
			Volume:    DefaultVolume,
			LowPassHz: DefaultLowPassHz,
		},
	}
}

// End returns the element's end time on the timeline
func (e *Element) End() float64 {
	return e.Start + e.Duration
}

// ActiveAt reports whether t falls inside [Start, End], end inclusive.
// Zero-duration elements are never active.
func (e *Element) ActiveAt(t float64) bool {
	return e.Duration > 0 && t >= e.Start && t <= e.End()
}

// LocalMediaTime maps a timeline time to the element's media-local time:
// the trim offset plus time elapsed since the element started. Playback
// rate is not part of the mapping; the handle plays at the element rate
// and the synchronizer's hysteresis band absorbs the difference. The
// result is clamped to the element's source window.
func (e *Element) LocalMediaTime(t float64) float64 {
	local := e.TrimStart + (t - e.Start)
	min := e.TrimStart
	max := e.TrimStart + e.Duration
	if local < min {
		return min
	}
	if local > max {
		return max
	}
	return local
}

// Normalize repairs invalid values after deserialization. Valid zeros
// (opacity 0, volume 0) are left alone.
func (e *Element) Normalize() {
	if e.Rate <= 0 {
		e.Rate = 1.0
	}
	if e.Duration < 0 {
		e.Duration = 0
	}
	if e.Opacity < 0 {
		e.Opacity = 0
	}
	if e.Opacity > 1 {
		e.Opacity = 1
	}
	if e.Audio.Volume < 0 {
		e.Audio.Volume = 0
	}
	if e.Audio.LowPassHz <= 0 {
		e.Audio.LowPassHz = DefaultLowPassHz
	}
	if e.Audio.HighPassHz < 0 {
		e.Audio.HighPassHz = DefaultHighPassHz
	}
	if e.Audio.DuckingThreshold < 0 {
		e.Audio.DuckingThreshold = 0
	}
	if e.Audio.DuckingThreshold > 1 {
		e.Audio.DuckingThreshold = 1
	}
	if e.Visual.BlurPx < 0 {
		e.Visual.BlurPx = 0
	}
	if e.Visual.Brightness < 0 {
		e.Visual.Brightness = 0
	}
	if e.Visual.Contrast < 0 {
		e.Visual.Contrast = 0
	}
	if e.Visual.Saturation < 0 {
		e.Visual.Saturation = 0
	}
}

// Clone returns a deep copy sharing no pointers with the original
func (e *Element) Clone() *Element {
	c := *e
	if e.TransitionIn != nil {
		in := *e.TransitionIn
		c.TransitionIn = &in
	}
	if e.TransitionOut != nil {
		out := *e.TransitionOut
		c.TransitionOut = &out
	}
	return &c
}
