// ABOUTME: Sequence document model holding tracks, elements, and markers
// ABOUTME: Provides time-window queries and stable z-order for the compositor
package timeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// TrackKind distinguishes what a track is meant to hold
type TrackKind string

const (
	TrackVideo   TrackKind = "video"
	TrackAudio   TrackKind = "audio"
	TrackOverlay TrackKind = "overlay"
)

// Track groups elements and carries mute/lock state
type Track struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Kind   TrackKind `json:"kind"`
	Muted  bool      `json:"muted,omitempty"`
	Locked bool      `json:"locked,omitempty"`
}

// Marker is a labeled point on the timeline
type Marker struct {
	ID    string  `json:"id"`
	Time  float64 `json:"time"`
	Label string  `json:"label,omitempty"`
	Color string  `json:"color,omitempty"`
}

// Sequence is the whole editable document
type Sequence struct {
	Name    string  `json:"name"`
	CanvasW float64 `json:"canvasW"`
	CanvasH float64 `json:"canvasH"`
	FPS     float64 `json:"fps"`

	Tracks   []Track    `json:"tracks"`
	Elements []*Element `json:"elements"`
	Markers  []Marker   `json:"markers,omitempty"`
}

// NewSequence creates an empty sequence with a default canvas
func NewSequence(name string) *Sequence {
	return &Sequence{
		Name:    name,
		CanvasW: 1920,
		CanvasH: 1080,
		FPS:     30,
	}
}

// AddTrack appends a track and returns it
func (s *Sequence) AddTrack(name string, kind TrackKind) *Track {
	s.Tracks = append(s.Tracks, Track{
		ID:   uuid.New().String(),
		Name: name,
		Kind: kind,
	})
	return &s.Tracks[len(s.Tracks)-1]
}

// TrackByID returns the track with the given ID, or nil
func (s *Sequence) TrackByID(id string) *Track {
	for i := range s.Tracks {
		if s.Tracks[i].ID == id {
			return &s.Tracks[i]
		}
	}
	return nil
}

// AddElement appends an element to the sequence
func (s *Sequence) AddElement(e *Element) {
	s.Elements = append(s.Elements, e)
}

// RemoveElement deletes the element with the given ID. Returns false if
// no such element exists.
func (s *Sequence) RemoveElement(id string) bool {
	for i, e := range s.Elements {
		if e.ID == id {
			s.Elements = append(s.Elements[:i], s.Elements[i+1:]...)
			return true
		}
	}
	return false
}

// ElementByID returns the element with the given ID, or nil
func (s *Sequence) ElementByID(id string) *Element {
	for _, e := range s.Elements {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// ReplaceElement swaps the stored element with the same ID. Returns false
// if no element matches.
func (s *Sequence) ReplaceElement(e *Element) bool {
	for i, old := range s.Elements {
		if old.ID == e.ID {
			s.Elements[i] = e
			return true
		}
	}
	return false
}

// ActiveAt returns the elements whose window contains t and that are not
// hidden. Track mute does not affect visibility.
func (s *Sequence) ActiveAt(t float64) []*Element {
	var active []*Element
	for _, e := range s.Elements {
		if e.Hidden || !e.ActiveAt(t) {
			continue
		}
		active = append(active, e)
	}
	return active
}

// AudibleAt returns the active elements that can currently produce sound:
// audio-bearing kind, not muted, positive volume, and an unmuted track.
func (s *Sequence) AudibleAt(t float64) []*Element {
	var audible []*Element
	for _, e := range s.Elements {
		if !e.ActiveAt(t) || e.Hidden {
			continue
		}
		if !e.Kind.HasAudio() || e.Audio.Muted || e.Audio.Volume <= 0 {
			continue
		}
		if tr := s.TrackByID(e.TrackID); tr != nil && tr.Muted {
			continue
		}
		audible = append(audible, e)
	}
	return audible
}

// SortedByZ returns elements ordered by ZIndex ascending. Elements with
// equal ZIndex keep their insertion order, so repeated sorts never
// reshuffle a frame.
func (s *Sequence) SortedByZ(elements []*Element) []*Element {
	sorted := make([]*Element, len(elements))
	copy(sorted, elements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ZIndex < sorted[j].ZIndex
	})
	return sorted
}

// Duration returns the end time of the last element, or 0 for an empty
// sequence
func (s *Sequence) Duration() float64 {
	var end float64
	for _, e := range s.Elements {
		if e.End() > end {
			end = e.End()
		}
	}
	return end
}

// Normalize repairs invalid values on the sequence and all elements
func (s *Sequence) Normalize() {
	if s.CanvasW <= 0 {
		s.CanvasW = 1920
	}
	if s.CanvasH <= 0 {
		s.CanvasH = 1080
	}
	if s.FPS <= 0 {
		s.FPS = 30
	}
	for _, e := range s.Elements {
		e.Normalize()
	}
}

// Clone returns a deep copy sharing no pointers with the original
func (s *Sequence) Clone() *Sequence {
	c := *s
	c.Tracks = make([]Track, len(s.Tracks))
	copy(c.Tracks, s.Tracks)
	c.Markers = make([]Marker, len(s.Markers))
	copy(c.Markers, s.Markers)
	c.Elements = make([]*Element, len(s.Elements))
	for i, e := range s.Elements {
		c.Elements[i] = e.Clone()
	}
	return &c
}

// Marshal serializes the sequence to JSON. Field order follows struct
// declaration order, so equal sequences always serialize identically.
func (s *Sequence) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal sequence: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes a sequence and normalizes it
func Unmarshal(data []byte) (*Sequence, error) {
	var s Sequence
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal sequence: %w", err)
	}
	s.Normalize()
	return &s, nil
}
