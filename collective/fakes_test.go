package collective

import (
	"fmt"
	"sync/atomic"
)

type fakeDevice struct {
	ordinal   int
	allocs    atomic.Int32
	failAlloc error
}

func (d *fakeDevice) Ordinal() int {
	return d.ordinal
}

func (d *fakeDevice) AllocateHostBuffer(byteSize int64) (*HostBuffer, error) {
	if d.failAlloc != nil {
		return nil, d.failAlloc
	}
	d.allocs.Add(1)
	return NewHostBuffer(make([]byte, byteSize)), nil
}

// fakeStream executes copies synchronously; the mandatory blocking wait is
// still observable through the waits counter.
type fakeStream struct {
	device  Device
	copyErr error
	waitErr error
	copies  int
	waits   int
}

func (s *fakeStream) Device() Device {
	return s.device
}

func (s *fakeStream) MemcpyDeviceToHost(dst []byte, src DeviceMemory) error {
	if s.copyErr != nil {
		return s.copyErr
	}
	copy(dst, src.Bytes())
	s.copies++
	return nil
}

func (s *fakeStream) BlockUntilDone() error {
	s.waits++
	return s.waitErr
}

type transfer struct {
	peer    int
	count   int64
	element ElementType
	data    []byte
}

type fakeComm struct {
	ranks       int
	numErr      error
	sendErr     error
	recvErr     error
	groupEndErr error
	sends       []transfer
	recvs       []transfer
	events      []string
}

func (c *fakeComm) NumRanks() (int, error) {
	if c.numErr != nil {
		return 0, c.numErr
	}
	return c.ranks, nil
}

func (c *fakeComm) Send(mem DeviceMemory, element ElementType, count int64, peer int, _ Stream) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sends = append(c.sends, transfer{peer: peer, count: count, element: element, data: mem.Bytes()})
	c.events = append(c.events, fmt.Sprintf("send:%d", peer))
	return nil
}

func (c *fakeComm) Recv(mem DeviceMemory, element ElementType, count int64, peer int, _ Stream) error {
	if c.recvErr != nil {
		return c.recvErr
	}
	c.recvs = append(c.recvs, transfer{peer: peer, count: count, element: element, data: mem.Bytes()})
	c.events = append(c.events, fmt.Sprintf("recv:%d", peer))
	return nil
}

func (c *fakeComm) GroupStart() error {
	c.events = append(c.events, "group_start")
	return nil
}

func (c *fakeComm) GroupEnd() error {
	if c.groupEndErr != nil {
		return c.groupEndErr
	}
	c.events = append(c.events, "group_end")
	return nil
}

type registeringComm struct {
	fakeComm
	registrations int
}

func (c *registeringComm) RegisterBuffers(_ Device, _ []DeviceBufferPair) error {
	c.registrations++
	return nil
}

type countingMetrics struct {
	started    int
	completed  int
	failed     int
	failStage  string
	staged     int
	sendPosts  int
	recvPosts  int
	lastLabels map[string]string
}

func (m *countingMetrics) ExchangeStarted(attrs map[string]string) {
	m.started++
	m.lastLabels = attrs
}

func (m *countingMetrics) ExchangeCompleted(attrs map[string]string) {
	m.completed++
	m.lastLabels = attrs
}

func (m *countingMetrics) ExchangeFailed(stage string, _ error, attrs map[string]string) {
	m.failed++
	m.failStage = stage
	m.lastLabels = attrs
}

func (m *countingMetrics) StagingCompleted(map[string]string) {
	m.staged++
}

func (m *countingMetrics) SendPosted(map[string]string) {
	m.sendPosts++
}

func (m *countingMetrics) ReceivePosted(map[string]string) {
	m.recvPosts++
}
