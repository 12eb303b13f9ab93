// Package history implements Flowfile's undo/redo subsystem: two bounded
// stacks of content-hashed snapshots keyed off graph mutations. It knows
// nothing about FlowGraph's internals — it operates purely through the
// Snapshotable interface, so graph and history never import each other.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// DefaultMaxDepth is the default bound on each stack's size.
const DefaultMaxDepth = 50

// Snapshotable is anything whose state can be captured as a byte
// document and later restored from one. FlowGraph implements this by
// delegating to the document (de)serializer.
type Snapshotable interface {
	Snapshot() ([]byte, error)
	Restore(doc []byte) error
}

// Entry is one recorded snapshot.
type Entry struct {
	Document  []byte
	Reason    string
	Timestamp time.Time
	Hash      string
}

func hashOf(doc []byte) string {
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

var ErrNothingToUndo = errors.New("history: nothing to undo")
var ErrNothingToRedo = errors.New("history: nothing to redo")

// Manager owns the undo/redo stacks for one flow.
type Manager struct {
	mu       sync.Mutex
	target   Snapshotable
	maxDepth int
	undo     []Entry
	redo     []Entry
	// suppressed is set while a restore is in flight, so Capture calls
	// triggered as a side effect of Restore don't create recursive
	// entries.
	suppressed bool
	now        func() time.Time
}

// New creates a Manager bound to target with the given max stack depth
// (DefaultMaxDepth if <= 0). now is the clock to stamp entries with;
// pass time.Now in production, a fixed clock in tests.
func New(target Snapshotable, maxDepth int, now func() time.Time) *Manager {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{target: target, maxDepth: maxDepth, now: now}
}

// Capture serializes the current state and pushes it onto the undo
// stack if it differs from the top entry, clearing redo. It is a no-op
// while a restore is in flight or if the hash is unchanged.
func (m *Manager) Capture(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.suppressed {
		return nil
	}
	doc, err := m.target.Snapshot()
	if err != nil {
		return err
	}
	hash := hashOf(doc)
	if len(m.undo) > 0 && m.undo[len(m.undo)-1].Hash == hash {
		return nil
	}
	m.push(&m.undo, Entry{Document: doc, Reason: reason, Timestamp: m.now(), Hash: hash})
	m.redo = nil
	return nil
}

// CaptureIfChanged records a snapshot only if the current hash differs
// from preHash, used by batched mutations that pre-compute their
// starting hash.
func (m *Manager) CaptureIfChanged(preHash, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.suppressed {
		return nil
	}
	doc, err := m.target.Snapshot()
	if err != nil {
		return err
	}
	hash := hashOf(doc)
	if hash == preHash {
		return nil
	}
	m.push(&m.undo, Entry{Document: doc, Reason: reason, Timestamp: m.now(), Hash: hash})
	m.redo = nil
	return nil
}

// CurrentHash returns the content hash of the live target's current
// state, useful as the preHash argument to CaptureIfChanged.
func (m *Manager) CurrentHash() (string, error) {
	doc, err := m.target.Snapshot()
	if err != nil {
		return "", err
	}
	return hashOf(doc), nil
}

func (m *Manager) push(stack *[]Entry, e Entry) {
	*stack = append(*stack, e)
	if len(*stack) > m.maxDepth {
		*stack = (*stack)[len(*stack)-m.maxDepth:]
	}
}

// Undo restores the state immediately before the most recent non-trivial
// mutation. The top of undo always mirrors the target's current live
// state (Capture pushes the post-mutation state), so undoing one step
// means popping it off and restoring the entry newly exposed below it,
// not the one just popped. That requires two entries on the stack; with
// only the baseline left, there is nowhere earlier to go.
func (m *Manager) Undo() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undo) < 2 {
		return ErrNothingToUndo
	}
	top := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	prev := m.undo[len(m.undo)-1]

	m.push(&m.redo, Entry{Document: top.Document, Reason: "redo:" + top.Reason, Timestamp: m.now(), Hash: top.Hash})

	m.suppressed = true
	err := m.target.Restore(prev.Document)
	m.suppressed = false
	return err
}

// Redo reapplies the mutation most recently undone. Unlike undo, a redo
// entry already holds the exact forward state to move into, so it is
// restored directly; it is then pushed onto undo so undo's top keeps
// mirroring the target's live state for any subsequent Undo call.
func (m *Manager) Redo() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.redo) == 0 {
		return ErrNothingToRedo
	}
	top := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]

	m.push(&m.undo, Entry{Document: top.Document, Reason: "undo:" + top.Reason, Timestamp: m.now(), Hash: top.Hash})

	m.suppressed = true
	err := m.target.Restore(top.Document)
	m.suppressed = false
	return err
}

// UndoDepth and RedoDepth report the current stack sizes, for tests and
// diagnostics.
func (m *Manager) UndoDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo)
}

func (m *Manager) RedoDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo)
}
