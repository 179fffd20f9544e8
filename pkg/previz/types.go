// ABOUTME: Public type surface for the previz client API
// ABOUTME: Re-exports timeline, frame, and sync types for SDK callers
package previz

import (
	"github.com/Previz-Studio/previz-go/internal/bridge"
	"github.com/Previz-Studio/previz-go/internal/compositor"
	"github.com/Previz-Studio/previz-go/internal/geometry"
	"github.com/Previz-Studio/previz-go/internal/protocol"
	"github.com/Previz-Studio/previz-go/internal/timeline"
	"github.com/Previz-Studio/previz-go/internal/transition"
)

// Timeline document types, re-exported so callers can build and edit
// sequences without reaching into internal packages.
type (
	Sequence       = timeline.Sequence
	Track          = timeline.Track
	Element        = timeline.Element
	Marker         = timeline.Marker
	ElementKind    = timeline.ElementKind
	TrackKind      = timeline.TrackKind
	TransitionSpec = timeline.TransitionSpec
	TransitionKind = transition.Kind
	AudioProps     = timeline.AudioProps
	VisualProps    = timeline.VisualProps
)

// Rendering types delivered to OnFrame.
type (
	Frame = compositor.Frame
	Layer = compositor.Layer
	Rect  = geometry.Rect
)

// TransportState mirrors the engine transport for remote UIs
type TransportState = protocol.TransportState

// Gesture math for pointer-driven editing. A gesture computes rects from
// the pointer's total delta since it began; send the results through
// PreviewElement and open the gesture with Commit.
type (
	Gesture = geometry.Gesture
	Handle  = geometry.Handle
	Point   = geometry.Point
)

// Resize handles, named by compass direction.
const (
	HandleN  = geometry.HandleN
	HandleS  = geometry.HandleS
	HandleE  = geometry.HandleE
	HandleW  = geometry.HandleW
	HandleNE = geometry.HandleNE
	HandleNW = geometry.HandleNW
	HandleSE = geometry.HandleSE
	HandleSW = geometry.HandleSW
)

// Element kinds.
const (
	KindVideo      = timeline.KindVideo
	KindAudio      = timeline.KindAudio
	KindImage      = timeline.KindImage
	KindText       = timeline.KindText
	KindShape      = timeline.KindShape
	KindProcedural = timeline.KindProcedural
)

// Track kinds.
const (
	TrackVideo   = timeline.TrackVideo
	TrackAudio   = timeline.TrackAudio
	TrackOverlay = timeline.TrackOverlay
)

// Transition kinds.
const (
	Fade      = transition.Fade
	Dissolve  = transition.Dissolve
	ZoomIn    = transition.ZoomIn
	ZoomOut   = transition.ZoomOut
	WipeLeft  = transition.WipeLeft
	WipeRight = transition.WipeRight
	WipeUp    = transition.WipeUp
	WipeDown  = transition.WipeDown
)

// Quality grades the engine clock estimate
type Quality = bridge.Quality

// Sync quality levels.
const (
	QualityGood     = bridge.QualityGood
	QualityDegraded = bridge.QualityDegraded
	QualityLost     = bridge.QualityLost
)

// NewSequence creates an empty sequence with the default canvas and rate
func NewSequence(name string) *Sequence {
	return timeline.NewSequence(name)
}

// NewElement creates an element of the given kind on a track
func NewElement(kind ElementKind, trackID string) *Element {
	return timeline.NewElement(kind, trackID)
}

// UnmarshalSequence parses and normalizes a sequence document
func UnmarshalSequence(data []byte) (*Sequence, error) {
	return timeline.Unmarshal(data)
}

// BeginDrag starts a translation gesture on an element's rect
func BeginDrag(start Rect, rotationDeg float64) *Gesture {
	return geometry.BeginDrag(start, rotationDeg)
}

// BeginResize starts a resize gesture on the named handle. The rotation
// maps pointer deltas into the element's local frame, so grips behave
// correctly on rotated elements.
func BeginResize(start Rect, rotationDeg float64, h Handle) *Gesture {
	return geometry.BeginResize(start, rotationDeg, h)
}
