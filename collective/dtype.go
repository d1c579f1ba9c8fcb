package collective

import "fmt"

// ElementType identifies the scalar type stored in a device buffer.
type ElementType int

const (
	ElementTypeInvalid ElementType = iota
	ElementTypeS8
	ElementTypeU8
	ElementTypeS16
	ElementTypeU16
	ElementTypeS32
	ElementTypeU32
	ElementTypeS64
	ElementTypeU64
	ElementTypeF16
	ElementTypeBF16
	ElementTypeF32
	ElementTypeF64
)

// SizeBytes reports the storage size of one element, or 0 for invalid types.
func (t ElementType) SizeBytes() int {
	switch t {
	case ElementTypeS8, ElementTypeU8:
		return 1
	case ElementTypeS16, ElementTypeU16, ElementTypeF16, ElementTypeBF16:
		return 2
	case ElementTypeS32, ElementTypeU32, ElementTypeF32:
		return 4
	case ElementTypeS64, ElementTypeU64, ElementTypeF64:
		return 8
	default:
		return 0
	}
}

// IsInteger reports whether the type is a signed or unsigned integer.
func (t ElementType) IsInteger() bool {
	switch t {
	case ElementTypeS8, ElementTypeU8, ElementTypeS16, ElementTypeU16,
		ElementTypeS32, ElementTypeU32, ElementTypeS64, ElementTypeU64:
		return true
	default:
		return false
	}
}

// IsIndexType reports whether the type is a legal offset/size array element.
// Only the 32- and 64-bit integer variants qualify.
func (t ElementType) IsIndexType() bool {
	return t.IsInteger() && t.SizeBytes() >= 4
}

func (t ElementType) String() string {
	switch t {
	case ElementTypeS8:
		return "s8"
	case ElementTypeU8:
		return "u8"
	case ElementTypeS16:
		return "s16"
	case ElementTypeU16:
		return "u16"
	case ElementTypeS32:
		return "s32"
	case ElementTypeU32:
		return "u32"
	case ElementTypeS64:
		return "s64"
	case ElementTypeU64:
		return "u64"
	case ElementTypeF16:
		return "f16"
	case ElementTypeBF16:
		return "bf16"
	case ElementTypeF32:
		return "f32"
	case ElementTypeF64:
		return "f64"
	default:
		return fmt.Sprintf("element_type(%d)", int(t))
	}
}

// Shape describes the element type and dimensions of an operand.
type Shape struct {
	Element ElementType
	Dims    []int64
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s.Dims)
}

// Elements returns the total element count, or 0 for a rank-0 shape.
func (s Shape) Elements() int64 {
	if len(s.Dims) == 0 {
		return 0
	}
	total := int64(1)
	for _, dim := range s.Dims {
		total *= dim
	}
	return total
}

// ByteSize returns the total storage size of the shape in bytes.
func (s Shape) ByteSize() int64 {
	return s.Elements() * int64(s.Element.SizeBytes())
}
