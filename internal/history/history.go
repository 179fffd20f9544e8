// ABOUTME: Bounded undo/redo history over serialized sequence snapshots
// ABOUTME: Deduplicates identical states and invalidates redo on new edits
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Previz-Studio/previz-go/internal/timeline"
)

// DefaultCapacity bounds each stack. Pushing onto a full undo stack
// evicts the oldest entry.
const DefaultCapacity = 50

type snapshot struct {
	label       string
	data        []byte
	fingerprint string
}

// History holds undo and redo stacks of sequence snapshots. Snapshots are
// serialized, so restored states share nothing with live state.
type History struct {
	capacity int
	undo     []snapshot
	redo     []snapshot

	// fingerprint of the last recorded state, maintained across push,
	// undo, and redo
	fingerprint string
}

// New creates a history with the given per-stack capacity. Non-positive
// capacities fall back to DefaultCapacity.
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{capacity: capacity}
}

// Push records the given state on the undo stack. Call it with the
// pre-edit state before every committed mutation.
//
// A push whose fingerprint matches the last recorded state is dropped
// entirely, so gestures that end up changing nothing never create empty
// undo steps and never invalidate the redo branch. The last recorded
// fingerprint follows undo and redo, which means re-committing a state
// the user just restored is also a no-op. Any push that does record
// clears the redo stack: once the user edits after undoing, the
// redone-away branch is gone.
func (h *History) Push(seq *timeline.Sequence, label string) error {
	snap, err := takeSnapshot(seq, label)
	if err != nil {
		return fmt.Errorf("push history: %w", err)
	}

	if snap.fingerprint == h.fingerprint {
		return nil
	}

	if len(h.undo) >= h.capacity {
		h.undo = h.undo[1:]
	}
	h.undo = append(h.undo, snap)
	h.redo = nil
	h.fingerprint = snap.fingerprint
	return nil
}

// Undo restores the most recent snapshot, moving the current state onto
// the redo stack. Returns (nil, false) when there is nothing to undo;
// underflow is never an error.
func (h *History) Undo(current *timeline.Sequence) (*timeline.Sequence, bool) {
	n := len(h.undo)
	if n == 0 {
		return nil, false
	}

	top := h.undo[n-1]
	h.undo = h.undo[:n-1]

	if cur, err := takeSnapshot(current, top.label); err == nil {
		if len(h.redo) >= h.capacity {
			h.redo = h.redo[1:]
		}
		h.redo = append(h.redo, cur)
	}

	restored, err := timeline.Unmarshal(top.data)
	if err != nil {
		return nil, false
	}
	h.fingerprint = top.fingerprint
	return restored, true
}

// Redo restores the most recently undone state, moving the current state
// back onto the undo stack. Returns (nil, false) when there is nothing to
// redo.
func (h *History) Redo(current *timeline.Sequence) (*timeline.Sequence, bool) {
	n := len(h.redo)
	if n == 0 {
		return nil, false
	}

	top := h.redo[n-1]
	h.redo = h.redo[:n-1]

	if cur, err := takeSnapshot(current, top.label); err == nil {
		if len(h.undo) >= h.capacity {
			h.undo = h.undo[1:]
		}
		h.undo = append(h.undo, cur)
	}

	restored, err := timeline.Unmarshal(top.data)
	if err != nil {
		return nil, false
	}
	h.fingerprint = top.fingerprint
	return restored, true
}

// CanUndo reports whether an undo step exists
func (h *History) CanUndo() bool { return len(h.undo) > 0 }

// CanRedo reports whether a redo step exists
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Depths returns the undo and redo stack depths
func (h *History) Depths() (undo, redo int) {
	return len(h.undo), len(h.redo)
}

// UndoLabel returns the label of the next undo step, or ""
func (h *History) UndoLabel() string {
	if n := len(h.undo); n > 0 {
		return h.undo[n-1].label
	}
	return ""
}

// RedoLabel returns the label of the next redo step, or ""
func (h *History) RedoLabel() string {
	if n := len(h.redo); n > 0 {
		return h.redo[n-1].label
	}
	return ""
}

// Clear drops both stacks, e.g. after loading a different project
func (h *History) Clear() {
	h.undo = nil
	h.redo = nil
	h.fingerprint = ""
}

func takeSnapshot(seq *timeline.Sequence, label string) (snapshot, error) {
	data, err := seq.Marshal()
	if err != nil {
		return snapshot{}, err
	}
	sum := sha256.Sum256(data)
	return snapshot{
		label:       label,
		data:        data,
		fingerprint: hex.EncodeToString(sum[:]),
	}, nil
}
