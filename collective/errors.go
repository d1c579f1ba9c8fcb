package collective

import "errors"

var (
	// ErrInvalidOperand indicates that an operation carries an operand shape
	// that is not implementable as a ragged all-to-all.
	ErrInvalidOperand = errors.New("collective: invalid operand")
	// ErrBufferMismatch indicates that buffer bindings do not line up with the
	// operation's operands.
	ErrBufferMismatch = errors.New("collective: buffer binding mismatch")
	// ErrDeviceNotInitialized indicates that an execution was attempted on a
	// device before Initialize succeeded for it. This is a caller ordering
	// bug, not a runtime data condition.
	ErrDeviceNotInitialized = errors.New("collective: staging buffer not initialized for device")
	// ErrUnsupportedIndexType indicates an offset/size array element type
	// outside the supported 32/64-bit integer widths.
	ErrUnsupportedIndexType = errors.New("collective: unsupported index element type")
	// ErrSliceOutOfBounds indicates a computed transfer slice that does not
	// fit inside its device buffer.
	ErrSliceOutOfBounds = errors.New("collective: slice out of bounds")
)
