// Package inproc provides an in-process reference runtime for the collective
// execution engine: a fixed-size group of ranks with per-device streams and a
// mailbox-based transport. It implements the device, stream, and communicator
// contracts of the collective package and is suitable for tests, examples,
// and single-process multi-worker runs.
package inproc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrWorldClosed indicates that the world has been shut down.
	ErrWorldClosed = errors.New("inproc: world closed")
	// ErrGroupScopeUnbalanced indicates a GroupEnd without a matching
	// GroupStart, or a nested GroupStart.
	ErrGroupScopeUnbalanced = errors.New("inproc: unbalanced group scope")
)

// World coordinates a fixed-size group of in-process ranks. Rank r's device
// is Device(r); its group participation handle is Communicator(r).
type World struct {
	id      string
	devices []*Device

	// mailboxes[from][to] carries payload snapshots between ranks.
	mailboxes [][]*mailbox

	mu         sync.Mutex
	closed     bool
	registered map[*byte]struct{}
}

// NewWorld constructs a world with the given number of ranks.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("inproc: world size must be at least 1, got %d", size)
	}
	w := &World{
		id:         uuid.NewString(),
		registered: make(map[*byte]struct{}),
	}
	w.devices = make([]*Device, size)
	for rank := range w.devices {
		w.devices[rank] = &Device{world: w, ordinal: rank}
	}
	w.mailboxes = make([][]*mailbox, size)
	for from := range w.mailboxes {
		w.mailboxes[from] = make([]*mailbox, size)
		for to := range w.mailboxes[from] {
			w.mailboxes[from][to] = newMailbox()
		}
	}
	return w, nil
}

// ID returns the world's unique instance identifier.
func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.id
}

// Size returns the number of ranks in the world.
func (w *World) Size() int {
	if w == nil {
		return 0
	}
	return len(w.devices)
}

// Device returns the device for rank, or nil when rank is out of range.
func (w *World) Device(rank int) *Device {
	if w == nil || rank < 0 || rank >= len(w.devices) {
		return nil
	}
	return w.devices[rank]
}

// Communicator returns rank's participation handle for the world's group.
func (w *World) Communicator(rank int) (*Communicator, error) {
	if w == nil {
		return nil, errors.New("inproc: nil world")
	}
	if rank < 0 || rank >= len(w.devices) {
		return nil, fmt.Errorf("inproc: rank %d out of range for world of %d", rank, len(w.devices))
	}
	return &Communicator{world: w, rank: rank}, nil
}

// Close shuts the world down and unblocks any receive still waiting on a
// mailbox. Pending receives fail with ErrWorldClosed.
func (w *World) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	for _, row := range w.mailboxes {
		for _, mb := range row {
			mb.close()
		}
	}
}

func (w *World) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// mailbox is an unbounded FIFO of payload snapshots between one ordered pair
// of ranks. push never blocks; pop blocks until a payload or close arrives.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
}

func newMailbox() *mailbox {
	mb := &mailbox{}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

func (m *mailbox) push(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrWorldClosed
	}
	m.queue = append(m.queue, payload)
	m.cond.Signal()
	return nil
}

func (m *mailbox) pop() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) == 0 && !m.closed {
		m.cond.Wait()
	}
	if len(m.queue) == 0 {
		return nil, ErrWorldClosed
	}
	payload := m.queue[0]
	m.queue = m.queue[1:]
	return payload, nil
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}
