package inproc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rocketbitz/collectives-go/collective"
)

var (
	_ collective.Communicator    = (*Communicator)(nil)
	_ collective.BufferRegistrar = (*Communicator)(nil)
)

// Communicator is one rank's handle on the world's transport. Send and Recv
// are asynchronous: they enqueue work on the supplied stream and return.
// Inside a GroupStart/GroupEnd scope, posted operations are buffered and
// submitted together at GroupEnd, in posting order.
type Communicator struct {
	world *World
	rank  int

	mu      sync.Mutex
	grouped bool
	pending []pendingOp
}

type pendingOp struct {
	stream *Stream
	op     func() error
}

// Rank returns this participant's ordinal position within the group.
func (c *Communicator) Rank() int {
	if c == nil {
		return -1
	}
	return c.rank
}

// NumRanks returns the number of participants in the group.
func (c *Communicator) NumRanks() (int, error) {
	if c == nil || c.world == nil {
		return 0, errors.New("inproc: nil communicator")
	}
	if c.world.isClosed() {
		return 0, ErrWorldClosed
	}
	return len(c.world.devices), nil
}

// Send enqueues a non-blocking send of count elements to peer. The payload is
// snapshotted when the stream executes the operation, so device writes before
// the send on the same stream are observed.
func (c *Communicator) Send(mem collective.DeviceMemory, element collective.ElementType, count int64, peer int, stream collective.Stream) error {
	s, err := c.checkTransfer(mem, element, count, peer, stream)
	if err != nil {
		return err
	}
	from, to := c.rank, peer
	op := func() error {
		payload := append([]byte(nil), mem.Bytes()...)
		if err := c.world.mailboxes[from][to].push(payload); err != nil {
			return fmt.Errorf("inproc: send from rank %d to %d: %w", from, to, err)
		}
		return nil
	}
	return c.submit(s, op)
}

// Recv enqueues a non-blocking receive of count elements from peer. The
// stream worker blocks until the matching send arrives; the caller does not.
func (c *Communicator) Recv(mem collective.DeviceMemory, element collective.ElementType, count int64, peer int, stream collective.Stream) error {
	s, err := c.checkTransfer(mem, element, count, peer, stream)
	if err != nil {
		return err
	}
	from, to := peer, c.rank
	op := func() error {
		payload, err := c.world.mailboxes[from][to].pop()
		if err != nil {
			return fmt.Errorf("inproc: recv at rank %d from %d: %w", to, from, err)
		}
		if len(payload) != len(mem.Bytes()) {
			return fmt.Errorf("inproc: recv at rank %d from %d: got %d bytes, expected %d", to, from, len(payload), len(mem.Bytes()))
		}
		copy(mem.Bytes(), payload)
		return nil
	}
	return c.submit(s, op)
}

// GroupStart opens a batching scope. Scopes do not nest.
func (c *Communicator) GroupStart() error {
	if c == nil {
		return errors.New("inproc: nil communicator")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grouped {
		return fmt.Errorf("%w: nested GroupStart", ErrGroupScopeUnbalanced)
	}
	c.grouped = true
	return nil
}

// GroupEnd closes the scope and submits the buffered operations to their
// streams in posting order.
func (c *Communicator) GroupEnd() error {
	if c == nil {
		return errors.New("inproc: nil communicator")
	}
	c.mu.Lock()
	if !c.grouped {
		c.mu.Unlock()
		return fmt.Errorf("%w: GroupEnd without GroupStart", ErrGroupScopeUnbalanced)
	}
	ops := c.pending
	c.pending = nil
	c.grouped = false
	c.mu.Unlock()

	for _, p := range ops {
		if err := p.stream.enqueue(p.op); err != nil {
			return err
		}
	}
	return nil
}

// RegisterBuffers records the payload buffers for zero-copy transfer.
// Idempotent: repeat calls for the same buffers are no-ops.
func (c *Communicator) RegisterBuffers(_ collective.Device, buffers []collective.DeviceBufferPair) error {
	if c == nil || c.world == nil {
		return errors.New("inproc: nil communicator")
	}
	c.world.mu.Lock()
	defer c.world.mu.Unlock()
	if c.world.closed {
		return ErrWorldClosed
	}
	for _, pair := range buffers {
		for _, mem := range []collective.DeviceMemory{pair.Source, pair.Destination} {
			data := mem.Bytes()
			if len(data) == 0 {
				continue
			}
			c.world.registered[&data[0]] = struct{}{}
		}
	}
	return nil
}

// registeredBufferCount reports how many distinct regions have been
// registered; exposed for tests.
func (w *World) registeredBufferCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.registered)
}

func (c *Communicator) checkTransfer(mem collective.DeviceMemory, element collective.ElementType, count int64, peer int, stream collective.Stream) (*Stream, error) {
	if c == nil || c.world == nil {
		return nil, errors.New("inproc: nil communicator")
	}
	if c.world.isClosed() {
		return nil, ErrWorldClosed
	}
	if peer < 0 || peer >= len(c.world.devices) {
		return nil, fmt.Errorf("inproc: peer %d out of range for world of %d", peer, len(c.world.devices))
	}
	if count < 0 {
		return nil, fmt.Errorf("inproc: negative element count %d", count)
	}
	if want := count * int64(element.SizeBytes()); mem.ByteSize() != want {
		return nil, fmt.Errorf("inproc: buffer holds %d bytes, %d %s elements need %d", mem.ByteSize(), count, element, want)
	}
	s, ok := stream.(*Stream)
	if !ok || s == nil {
		return nil, errors.New("inproc: stream must be an inproc stream")
	}
	return s, nil
}

func (c *Communicator) submit(stream *Stream, op func() error) error {
	c.mu.Lock()
	if c.grouped {
		c.pending = append(c.pending, pendingOp{stream: stream, op: op})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return stream.enqueue(op)
}
