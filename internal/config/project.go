// ABOUTME: YAML project documents, the human-editable way to author sequences
// ABOUTME: Converts to the timeline model; absent keys keep element defaults
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Previz-Studio/previz-go/internal/geometry"
	"github.com/Previz-Studio/previz-go/internal/timeline"
	"github.com/Previz-Studio/previz-go/internal/transition"
)

// Project is the YAML document describing a sequence
type Project struct {
	Name    string          `yaml:"name"`
	Canvas  *ProjectCanvas  `yaml:"canvas"`
	FPS     float64         `yaml:"fps"`
	Tracks  []ProjectTrack  `yaml:"tracks"`
	Markers []ProjectMarker `yaml:"markers"`
}

// ProjectCanvas is the canvas size in canvas units
type ProjectCanvas struct {
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// ProjectTrack groups elements; kind defaults to video
type ProjectTrack struct {
	Name     string           `yaml:"name"`
	Kind     string           `yaml:"kind"`
	Muted    bool             `yaml:"muted"`
	Locked   bool             `yaml:"locked"`
	Elements []ProjectElement `yaml:"elements"`
}

// ProjectElement mirrors timeline.Element with optional fields as pointers
// so an absent key keeps the element default instead of reading as zero
type ProjectElement struct {
	Kind      string   `yaml:"kind"`
	Name      string   `yaml:"name"`
	Start     float64  `yaml:"start"`
	Duration  float64  `yaml:"duration"`
	TrimStart float64  `yaml:"trimStart"`
	Rate      *float64 `yaml:"rate"`

	Asset  string  `yaml:"asset"`
	Text   string  `yaml:"text"`
	FontPx float64 `yaml:"fontPx"`
	ToneHz float64 `yaml:"toneHz"`
	Color  string  `yaml:"color"`

	Rect     *ProjectRect `yaml:"rect"`
	Rotation float64      `yaml:"rotation"`
	FlipX    bool         `yaml:"flipX"`
	FlipY    bool         `yaml:"flipY"`
	Opacity  *float64     `yaml:"opacity"`
	Z        int          `yaml:"z"`
	Hidden   bool         `yaml:"hidden"`

	Volume           *float64 `yaml:"volume"`
	Muted            bool     `yaml:"muted"`
	HighPassHz       float64  `yaml:"highPassHz"`
	LowPassHz        float64  `yaml:"lowPassHz"`
	Ducking          bool     `yaml:"ducking"`
	DuckingThreshold float64  `yaml:"duckingThreshold"`

	TransitionIn  *ProjectTransition `yaml:"transitionIn"`
	TransitionOut *ProjectTransition `yaml:"transitionOut"`
}

// ProjectRect is a canvas rectangle
type ProjectRect struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// ProjectTransition attaches a transition window to one element edge
type ProjectTransition struct {
	Kind     string  `yaml:"kind"`
	Duration float64 `yaml:"duration"`
}

// ProjectMarker is a labeled point on the timeline
type ProjectMarker struct {
	Time  float64 `yaml:"time"`
	Label string  `yaml:"label"`
	Color string  `yaml:"color"`
}

// LoadProject reads a YAML project file and converts it to a sequence
func LoadProject(path string) (*timeline.Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}

	seq, err := p.Sequence()
	if err != nil {
		return nil, fmt.Errorf("invalid project %s: %w", path, err)
	}
	return seq, nil
}

// Sequence converts the project document to a timeline sequence
func (p *Project) Sequence() (*timeline.Sequence, error) {
	name := p.Name
	if name == "" {
		name = "Untitled"
	}
	seq := timeline.NewSequence(name)
	if p.Canvas != nil {
		seq.CanvasW = p.Canvas.W
		seq.CanvasH = p.Canvas.H
	}
	if p.FPS > 0 {
		seq.FPS = p.FPS
	}

	for ti, pt := range p.Tracks {
		kind, err := trackKind(pt.Kind)
		if err != nil {
			return nil, fmt.Errorf("track %d (%s): %w", ti, pt.Name, err)
		}
		track := seq.AddTrack(pt.Name, kind)
		track.Muted = pt.Muted
		track.Locked = pt.Locked

		for ei, pe := range pt.Elements {
			el, err := pe.element(track.ID)
			if err != nil {
				return nil, fmt.Errorf("track %d element %d: %w", ti, ei, err)
			}
			seq.AddElement(el)
		}
	}

	for _, pm := range p.Markers {
		seq.Markers = append(seq.Markers, timeline.Marker{
			ID:    uuid.New().String(),
			Time:  pm.Time,
			Label: pm.Label,
			Color: pm.Color,
		})
	}

	seq.Normalize()
	return seq, nil
}

func (pe *ProjectElement) element(trackID string) (*timeline.Element, error) {
	kind, err := elementKind(pe.Kind)
	if err != nil {
		return nil, err
	}

	el := timeline.NewElement(kind, trackID)
	el.Name = pe.Name
	el.Start = pe.Start
	el.Duration = pe.Duration
	el.TrimStart = pe.TrimStart
	if pe.Rate != nil {
		el.Rate = *pe.Rate
	}

	el.AssetID = pe.Asset
	el.Text = pe.Text
	el.FontPx = pe.FontPx
	el.ToneHz = pe.ToneHz
	el.Visual.Color = pe.Color

	if pe.Rect != nil {
		el.Rect = geometry.Rect{X: pe.Rect.X, Y: pe.Rect.Y, W: pe.Rect.W, H: pe.Rect.H}
	}
	el.Rotation = pe.Rotation
	el.FlipX = pe.FlipX
	el.FlipY = pe.FlipY
	if pe.Opacity != nil {
		el.Opacity = *pe.Opacity
	}
	el.ZIndex = pe.Z
	el.Hidden = pe.Hidden

	if pe.Volume != nil {
		el.Audio.Volume = *pe.Volume
	}
	el.Audio.Muted = pe.Muted
	if pe.HighPassHz > 0 {
		el.Audio.HighPassHz = pe.HighPassHz
	}
	if pe.LowPassHz > 0 {
		el.Audio.LowPassHz = pe.LowPassHz
	}
	el.Audio.Ducking = pe.Ducking
	el.Audio.DuckingThreshold = pe.DuckingThreshold

	if el.TransitionIn, err = pe.TransitionIn.spec(); err != nil {
		return nil, err
	}
	if el.TransitionOut, err = pe.TransitionOut.spec(); err != nil {
		return nil, err
	}
	return el, nil
}

func (pt *ProjectTransition) spec() (*timeline.TransitionSpec, error) {
	if pt == nil {
		return nil, nil
	}
	kind := transition.Kind(pt.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown transition kind %q", pt.Kind)
	}
	if pt.Duration <= 0 {
		return nil, fmt.Errorf("transition duration %g must be positive", pt.Duration)
	}
	return &timeline.TransitionSpec{Kind: kind, Duration: pt.Duration}, nil
}

func trackKind(s string) (timeline.TrackKind, error) {
	switch s {
	case "", "video":
		return timeline.TrackVideo, nil
	case "audio":
		return timeline.TrackAudio, nil
	case "overlay":
		return timeline.TrackOverlay, nil
	}
	return "", fmt.Errorf("unknown track kind %q", s)
}

func elementKind(s string) (timeline.ElementKind, error) {
	if s == "" {
		return "", fmt.Errorf("element kind missing")
	}
	switch kind := timeline.ElementKind(s); kind {
	case timeline.KindVideo, timeline.KindAudio, timeline.KindImage,
		timeline.KindText, timeline.KindShape, timeline.KindProcedural:
		return kind, nil
	}
	return "", fmt.Errorf("unknown element kind %q", s)
}
