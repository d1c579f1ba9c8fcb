package inproc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rocketbitz/collectives-go/collective"
)

var _ collective.Stream = (*Stream)(nil)

// ErrStreamClosed indicates that work was enqueued on a closed stream.
var ErrStreamClosed = errors.New("inproc: stream closed")

// Stream executes enqueued operations strictly in order on one worker
// goroutine. The first failing operation poisons the stream: later
// operations are skipped and BlockUntilDone reports the failure.
type Stream struct {
	device *Device

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func() error
	pending int
	err     error
	closed  bool
}

func newStream(device *Device) *Stream {
	s := &Stream{device: device}
	s.cond = sync.NewCond(&s.mu)
	go s.work()
	return s
}

// Device returns the device the stream is bound to.
func (s *Stream) Device() collective.Device {
	if s == nil {
		return nil
	}
	return s.device
}

// MemcpyDeviceToHost enqueues an asynchronous device-to-host copy. The copy
// snapshots the source when it executes, not when it is enqueued.
func (s *Stream) MemcpyDeviceToHost(dst []byte, src collective.DeviceMemory) error {
	if s == nil {
		return errors.New("inproc: nil stream")
	}
	if int64(len(dst)) != src.ByteSize() {
		return fmt.Errorf("inproc: memcpy size mismatch: dst %d bytes, src %d bytes", len(dst), src.ByteSize())
	}
	return s.enqueue(func() error {
		copy(dst, src.Bytes())
		return nil
	})
}

// BlockUntilDone blocks the calling goroutine until all previously enqueued
// work has completed, returning the stream's sticky error.
func (s *Stream) BlockUntilDone() error {
	if s == nil {
		return errors.New("inproc: nil stream")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.cond.Wait()
	}
	return s.err
}

// Close stops the worker after draining the remaining queue. Pending
// operations still run (or are skipped if the stream is poisoned).
func (s *Stream) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Stream) enqueue(op func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.queue = append(s.queue, op)
	s.pending++
	s.cond.Broadcast()
	return nil
}

// fail marks the stream poisoned, as a failed enqueue-time operation would.
// Used by tests to model copy or wait failures.
func (s *Stream) fail(err error) {
	if s == nil || err == nil {
		return
	}
	_ = s.enqueue(func() error { return err })
}

func (s *Stream) work() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		op := s.queue[0]
		s.queue = s.queue[1:]
		poisoned := s.err != nil
		s.mu.Unlock()

		var opErr error
		if !poisoned {
			opErr = op()
		}

		s.mu.Lock()
		if opErr != nil && s.err == nil {
			s.err = opErr
		}
		s.pending--
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}
