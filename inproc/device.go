package inproc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rocketbitz/collectives-go/collective"
	"github.com/rocketbitz/collectives-go/internal/hostbuf"
)

var _ collective.Device = (*Device)(nil)

// Device is one rank's execution context. Device memory is backed by host
// memory; the device exists to carry identity and allocation, the way an
// accelerator executor would.
type Device struct {
	world   *World
	ordinal int
}

// Ordinal returns the device's rank within its world.
func (d *Device) Ordinal() int {
	if d == nil {
		return -1
	}
	return d.ordinal
}

// World returns the owning world.
func (d *Device) World() *World {
	if d == nil {
		return nil
	}
	return d.world
}

// AllocateHostBuffer allocates an aligned, zeroed host staging region.
func (d *Device) AllocateHostBuffer(byteSize int64) (*collective.HostBuffer, error) {
	if d == nil {
		return nil, errors.New("inproc: nil device")
	}
	if d.world.isClosed() {
		return nil, ErrWorldClosed
	}
	data, err := hostbuf.Alloc(int(byteSize))
	if err != nil {
		return nil, fmt.Errorf("inproc: host buffer for device %d: %w", d.ordinal, err)
	}
	return collective.NewHostBuffer(data), nil
}

// AllocateMemory provisions zeroed device-resident storage for count elements
// of the given type.
func (d *Device) AllocateMemory(element collective.ElementType, count int64) (collective.DeviceMemory, error) {
	if d == nil {
		return collective.DeviceMemory{}, errors.New("inproc: nil device")
	}
	width := int64(element.SizeBytes())
	if width == 0 {
		return collective.DeviceMemory{}, fmt.Errorf("inproc: cannot allocate %s memory", element)
	}
	if count < 0 {
		return collective.DeviceMemory{}, fmt.Errorf("inproc: negative element count %d", count)
	}
	return collective.MemoryFromBytes(make([]byte, count*width)), nil
}

// NewStream starts an ordered asynchronous command queue bound to the device.
// Callers own the stream and should Close it when finished.
func (d *Device) NewStream() *Stream {
	if d == nil {
		return nil
	}
	return newStream(d)
}

// WriteIndexValues encodes values into mem using the declared index element
// type. Intended for preparing offset/size arrays in tests and examples.
func WriteIndexValues(mem collective.DeviceMemory, element collective.ElementType, values []int64) error {
	data := mem.Bytes()
	width := element.SizeBytes()
	if len(values)*width > len(data) {
		return fmt.Errorf("inproc: %d %s values do not fit in %d bytes", len(values), element, len(data))
	}
	switch element {
	case collective.ElementTypeS32, collective.ElementTypeU32:
		for i, v := range values {
			binary.LittleEndian.PutUint32(data[i*4:], uint32(v))
		}
	case collective.ElementTypeS64, collective.ElementTypeU64:
		for i, v := range values {
			binary.LittleEndian.PutUint64(data[i*8:], uint64(v))
		}
	default:
		return fmt.Errorf("%w: %s", collective.ErrUnsupportedIndexType, element)
	}
	return nil
}
