package collective

import (
	"encoding/binary"
	"fmt"
)

// IndexArray is a width-polymorphic read-only view over a staged host region
// holding offset or size values. It borrows the region and never outlives the
// invocation that staged it.
type IndexArray struct {
	data    []byte
	element ElementType
}

// NewIndexArray wraps a staged region with its declared element type.
func NewIndexArray(data []byte, element ElementType) IndexArray {
	return IndexArray{data: data, element: element}
}

// Len returns the number of decodable values, or 0 for unsupported widths.
func (a IndexArray) Len() int {
	width := a.element.SizeBytes()
	if width == 0 || !a.element.IsIndexType() {
		return 0
	}
	return len(a.data) / width
}

// At decodes the i-th value widened to a signed 64-bit integer. Unsupported
// element types return ErrUnsupportedIndexType; the set of legal types is
// fixed by CheckImplementable, so hitting it indicates a caller bug.
func (a IndexArray) At(i int) (int64, error) {
	if i < 0 {
		return 0, fmt.Errorf("collective: index %d out of range", i)
	}
	switch a.element {
	case ElementTypeS32:
		off := i * 4
		if off+4 > len(a.data) {
			return 0, fmt.Errorf("collective: index %d out of range for %d staged bytes", i, len(a.data))
		}
		return int64(int32(binary.LittleEndian.Uint32(a.data[off:]))), nil
	case ElementTypeU32:
		off := i * 4
		if off+4 > len(a.data) {
			return 0, fmt.Errorf("collective: index %d out of range for %d staged bytes", i, len(a.data))
		}
		return int64(binary.LittleEndian.Uint32(a.data[off:])), nil
	case ElementTypeS64, ElementTypeU64:
		off := i * 8
		if off+8 > len(a.data) {
			return 0, fmt.Errorf("collective: index %d out of range for %d staged bytes", i, len(a.data))
		}
		return int64(binary.LittleEndian.Uint64(a.data[off:])), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedIndexType, a.element)
	}
}
