package collective

import "fmt"

// GroupMode identifies how replica groups are interpreted when resolving the
// participants of a collective operation.
type GroupMode int

const (
	// GroupModeCrossReplica groups replicas within one partition.
	GroupModeCrossReplica GroupMode = iota
	// GroupModeCrossPartition groups partitions within one replica.
	GroupModeCrossPartition
	// GroupModeCrossReplicaAndPartition groups replicas across all
	// partitions. Not produced for ragged all-to-all; retained because the
	// configuration derivation is shared by all collective kinds.
	GroupModeCrossReplicaAndPartition
	// GroupModeFlattenedID interprets group members as flattened global
	// device identifiers.
	GroupModeFlattenedID
)

func (m GroupMode) String() string {
	switch m {
	case GroupModeCrossReplica:
		return "cross_replica"
	case GroupModeCrossPartition:
		return "cross_partition"
	case GroupModeCrossReplicaAndPartition:
		return "cross_replica_and_partition"
	case GroupModeFlattenedID:
		return "flattened_id"
	default:
		return fmt.Sprintf("group_mode(%d)", int(m))
	}
}

// Operand positions within a ragged all-to-all operation and its buffer
// bindings. Position 0 is the payload; positions 1 through 4 are the four
// dynamic index arrays, each of ragged-row-count length.
const (
	operandPayload = iota
	operandInputOffsets
	operandSendSizes
	operandOutputOffsets
	operandRecvSizes
	numRaggedOperands
)

func operandName(i int) string {
	switch i {
	case operandPayload:
		return "payload"
	case operandInputOffsets:
		return "input_offsets"
	case operandSendSizes:
		return "send_sizes"
	case operandOutputOffsets:
		return "output_offsets"
	case operandRecvSizes:
		return "recv_sizes"
	default:
		return fmt.Sprintf("operand(%d)", i)
	}
}

// RaggedAllToAllOp describes a single ragged all-to-all operation after it
// has been proven schedulable. How the operation is chosen or type-checked is
// outside this package.
type RaggedAllToAllOp struct {
	// Result is the shape of the exchanged payload on the destination side.
	Result Shape
	// Operands holds the payload shape followed by the four index array
	// shapes, in binding order.
	Operands []Shape
	// ReplicaGroups lists the communicating groups; interpretation depends on
	// the derived GroupMode.
	ReplicaGroups [][]int64
	// ChannelID distinguishes cross-partition channels; zero means unset.
	ChannelID int64
	// UseGlobalDeviceIDs marks ReplicaGroups as flattened device identifiers.
	UseGlobalDeviceIDs bool
}

// GetGroupMode returns the participant-grouping mode implied by the
// operation's configuration. Used by the surrounding scheduler, not by
// execution itself.
func GetGroupMode(op *RaggedAllToAllOp) GroupMode {
	if op == nil {
		return GroupModeCrossReplica
	}
	switch {
	case op.ChannelID != 0 && op.UseGlobalDeviceIDs:
		return GroupModeFlattenedID
	case op.ChannelID != 0:
		return GroupModeCrossPartition
	default:
		return GroupModeCrossReplica
	}
}

// raggedAllToAllConfig is the immutable descriptor derived once at thunk
// construction.
type raggedAllToAllConfig struct {
	rowElementCount int64
	raggedRowCount  int64
	groupMode       GroupMode
	replicaGroups   [][]int64
	operandElements []ElementType
}

func getRaggedAllToAllConfig(op *RaggedAllToAllOp) (raggedAllToAllConfig, error) {
	if op == nil {
		return raggedAllToAllConfig{}, fmt.Errorf("%w: nil operation", ErrInvalidOperand)
	}
	if len(op.Operands) != numRaggedOperands {
		return raggedAllToAllConfig{}, fmt.Errorf("%w: got %d operands, want %d", ErrInvalidOperand, len(op.Operands), numRaggedOperands)
	}
	if op.Result.Rank() < 1 || op.Result.Dims[0] < 1 {
		return raggedAllToAllConfig{}, fmt.Errorf("%w: result shape must have a positive leading dimension", ErrInvalidOperand)
	}
	if op.Operands[operandInputOffsets].Rank() != 1 {
		return raggedAllToAllConfig{}, fmt.Errorf("%w %d (%s): must be rank 1", ErrInvalidOperand, operandInputOffsets, operandName(operandInputOffsets))
	}
	cfg := raggedAllToAllConfig{
		rowElementCount: op.Result.Elements() / op.Result.Dims[0],
		raggedRowCount:  op.Operands[operandInputOffsets].Dims[0],
		groupMode:       GetGroupMode(op),
		replicaGroups:   op.ReplicaGroups,
		operandElements: make([]ElementType, numRaggedOperands),
	}
	for i, shape := range op.Operands {
		cfg.operandElements[i] = shape.Element
	}
	return cfg, nil
}

// CheckImplementable validates every operand shape before the program is
// accepted. It fails fast with the first offending operand; execution never
// starts for an operation that fails here.
func CheckImplementable(op *RaggedAllToAllOp, replicaCount, partitionCount int64) error {
	err := checkOperands(op)
	if err != nil {
		return fmt.Errorf("ragged-all-to-all (replica_count=%d, partition_count=%d): %w", replicaCount, partitionCount, err)
	}
	return nil
}

func checkOperands(op *RaggedAllToAllOp) error {
	if op == nil {
		return fmt.Errorf("%w: nil operation", ErrInvalidOperand)
	}
	if len(op.Operands) != numRaggedOperands {
		return fmt.Errorf("%w: got %d operands, want %d", ErrInvalidOperand, len(op.Operands), numRaggedOperands)
	}
	for i, shape := range op.Operands {
		if err := checkOperandShape(i, shape); err != nil {
			return err
		}
	}

	rows := op.Operands[operandInputOffsets].Dims[0]
	for i := operandSendSizes; i <= operandRecvSizes; i++ {
		if op.Operands[i].Dims[0] != rows {
			return fmt.Errorf("%w %d (%s): has %d rows, input_offsets has %d", ErrInvalidOperand, i, operandName(i), op.Operands[i].Dims[0], rows)
		}
	}

	if op.Result.Rank() < 1 || op.Result.Dims[0] < 1 {
		return fmt.Errorf("%w: result shape must have a positive leading dimension", ErrInvalidOperand)
	}
	if op.Result.Elements()%op.Result.Dims[0] != 0 {
		return fmt.Errorf("%w: result element count %d not divisible by leading dimension %d", ErrInvalidOperand, op.Result.Elements(), op.Result.Dims[0])
	}
	rowElements := op.Result.Elements() / op.Result.Dims[0]
	if op.Operands[operandPayload].Elements()%rowElements != 0 {
		return fmt.Errorf("%w %d (%s): element count %d not divisible by row size %d", ErrInvalidOperand, operandPayload, operandName(operandPayload), op.Operands[operandPayload].Elements(), rowElements)
	}

	if op.UseGlobalDeviceIDs && op.ChannelID == 0 {
		return fmt.Errorf("%w: use_global_device_ids requires a channel id", ErrInvalidOperand)
	}
	return nil
}

func checkOperandShape(i int, shape Shape) error {
	if i == operandPayload {
		if shape.Rank() < 1 {
			return fmt.Errorf("%w %d (%s): must have rank >= 1", ErrInvalidOperand, i, operandName(i))
		}
		if shape.Element.SizeBytes() == 0 {
			return fmt.Errorf("%w %d (%s): unsupported element type %s", ErrInvalidOperand, i, operandName(i), shape.Element)
		}
		for _, dim := range shape.Dims {
			if dim < 1 {
				return fmt.Errorf("%w %d (%s): non-positive dimension %d", ErrInvalidOperand, i, operandName(i), dim)
			}
		}
		return nil
	}
	if shape.Rank() != 1 {
		return fmt.Errorf("%w %d (%s): index arrays must be rank 1", ErrInvalidOperand, i, operandName(i))
	}
	if !shape.Element.IsIndexType() {
		return fmt.Errorf("%w %d (%s): index arrays must be 32- or 64-bit integers, got %s", ErrInvalidOperand, i, operandName(i), shape.Element)
	}
	if shape.Dims[0] < 1 {
		return fmt.Errorf("%w %d (%s): must hold at least one row", ErrInvalidOperand, i, operandName(i))
	}
	return nil
}
