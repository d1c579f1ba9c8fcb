package collective

import "fmt"

// DeviceMemory is an opaque view over a contiguous device-resident byte
// region. The reference runtime backs it with host memory; accelerator
// runtimes are expected to treat Bytes as the device-visible mapping.
type DeviceMemory struct {
	data []byte
}

// MemoryFromBytes wraps an existing byte region as device memory. The view
// borrows the slice; it never copies or frees it.
func MemoryFromBytes(data []byte) DeviceMemory {
	return DeviceMemory{data: data}
}

// Bytes returns the underlying byte region.
func (m DeviceMemory) Bytes() []byte {
	return m.data
}

// ByteSize returns the region length in bytes.
func (m DeviceMemory) ByteSize() int64 {
	return int64(len(m.data))
}

// IsNull reports whether the view references no memory.
func (m DeviceMemory) IsNull() bool {
	return m.data == nil
}

// Slice returns a sub-view of mem covering countElements elements of the
// given type starting at offsetElements. Zero-length slices are legal.
func Slice(mem DeviceMemory, element ElementType, offsetElements, countElements int64) (DeviceMemory, error) {
	width := int64(element.SizeBytes())
	if width == 0 {
		return DeviceMemory{}, fmt.Errorf("%w: cannot slice %s buffer", ErrUnsupportedIndexType, element)
	}
	if offsetElements < 0 || countElements < 0 {
		return DeviceMemory{}, fmt.Errorf("%w: offset %d count %d", ErrSliceOutOfBounds, offsetElements, countElements)
	}
	begin := offsetElements * width
	end := begin + countElements*width
	if end > mem.ByteSize() {
		return DeviceMemory{}, fmt.Errorf("%w: [%d, %d) exceeds buffer of %d bytes", ErrSliceOutOfBounds, begin, end, mem.ByteSize())
	}
	return DeviceMemory{data: mem.data[begin:end:end]}, nil
}

// HostBuffer owns a host-resident staging region used to read device values
// needed to plan subsequent transfers.
type HostBuffer struct {
	data []byte
}

// NewHostBuffer wraps an allocated host region.
func NewHostBuffer(data []byte) *HostBuffer {
	return &HostBuffer{data: data}
}

// Bytes returns the staging region.
func (b *HostBuffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the staging region size in bytes.
func (b *HostBuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}
