package collective

import "fmt"

// Device is an opaque handle distinguishing one accelerator device from
// another. Implementations must be comparable; the staging cache uses the
// interface value itself as its key.
type Device interface {
	// Ordinal returns the device's position within its runtime.
	Ordinal() int
	// AllocateHostBuffer allocates pinned host memory suitable for
	// asynchronous device-to-host copies.
	AllocateHostBuffer(byteSize int64) (*HostBuffer, error)
}

// Stream is an ordered asynchronous command queue bound to one device.
// Operations execute strictly in enqueue order; MemcpyDeviceToHost returns as
// soon as the copy is enqueued.
type Stream interface {
	Device() Device
	MemcpyDeviceToHost(dst []byte, src DeviceMemory) error
	// BlockUntilDone blocks the calling thread until all previously enqueued
	// work on this stream has completed, returning the first failure.
	BlockUntilDone() error
}

// Communicator abstracts one participant's view of a communication group.
// Send and Recv are asynchronous, ordered on the supplied stream. Operations
// issued between GroupStart and GroupEnd are mutually concurrent; the
// transport may not flush them before the matching GroupEnd.
type Communicator interface {
	NumRanks() (int, error)
	Send(mem DeviceMemory, element ElementType, count int64, peer int, stream Stream) error
	Recv(mem DeviceMemory, element ElementType, count int64, peer int, stream Stream) error
	GroupStart() error
	GroupEnd() error
}

// BufferRegistrar is an optional communicator capability that pre-registers
// payload buffers for zero-copy transfer. Registration must be idempotent.
type BufferRegistrar interface {
	RegisterBuffers(device Device, buffers []DeviceBufferPair) error
}

// Buffer binds one operand's source and destination regions. Bindings are
// immutable references into buffers owned by the surrounding program.
type Buffer struct {
	Source       DeviceMemory
	Destination  DeviceMemory
	ElementCount int64
}

// DeviceBufferPair is the uniform typed view of a binding used during
// execution.
type DeviceBufferPair struct {
	Element      ElementType
	ElementCount int64
	Source       DeviceMemory
	Destination  DeviceMemory
}

// convertToDeviceBuffers zips buffer bindings with their operand element
// types, checking that each source region is large enough for its declared
// element count.
func convertToDeviceBuffers(buffers []Buffer, elements []ElementType) ([]DeviceBufferPair, error) {
	if len(buffers) != len(elements) {
		return nil, fmt.Errorf("%w: %d bindings for %d operand types", ErrBufferMismatch, len(buffers), len(elements))
	}
	pairs := make([]DeviceBufferPair, len(buffers))
	for i, buf := range buffers {
		need := buf.ElementCount * int64(elements[i].SizeBytes())
		if buf.Source.ByteSize() < need {
			return nil, fmt.Errorf("%w: binding %d source holds %d bytes, needs %d", ErrBufferMismatch, i, buf.Source.ByteSize(), need)
		}
		pairs[i] = DeviceBufferPair{
			Element:      elements[i],
			ElementCount: buf.ElementCount,
			Source:       buf.Source,
			Destination:  buf.Destination,
		}
	}
	return pairs, nil
}
