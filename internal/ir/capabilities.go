package ir

import (
	"fmt"
	"strings"
)

// OperatorCapabilities describes the side effects of an operator. Flags come
// in positive/negative pairs; every valid mask sets exactly one of each pair.
type OperatorCapabilities uint32

const (
	IsCommutative                      OperatorCapabilities = 0x00000001
	IsNonCommutative                   OperatorCapabilities = 0x00000002
	MayMutateExistingStorage           OperatorCapabilities = 0x00000004
	DoesNotMutateExistingStorage       OperatorCapabilities = 0x00000008
	MayAllocateStorage                 OperatorCapabilities = 0x00000010
	DoesNotAllocateStorage             OperatorCapabilities = 0x00000020
	MayReadExistingMutableStorage      OperatorCapabilities = 0x00000040
	DoesNotReadExistingMutableStorage  OperatorCapabilities = 0x00000080
	MayThrow                           OperatorCapabilities = 0x00000100
	DoesNotThrow                       OperatorCapabilities = 0x00000200
	MayReadThroughPointerOperands      OperatorCapabilities = 0x00000400
	DoesNotReadThroughPointerOperands  OperatorCapabilities = 0x00000800
	MayWriteThroughPointerOperands     OperatorCapabilities = 0x00001000
	DoesNotWriteThroughPointerOperands OperatorCapabilities = 0x00002000
	MayCapturePointerOperands          OperatorCapabilities = 0x00004000
	DoesNotCapturePointerOperands      OperatorCapabilities = 0x00008000

	IsMetaOperator OperatorCapabilities = 0x00010000

	// MutuallyExclusive has the positive flag of every pair.
	MutuallyExclusive = IsCommutative |
		MayMutateExistingStorage |
		MayAllocateStorage |
		MayReadExistingMutableStorage |
		MayThrow |
		MayReadThroughPointerOperands |
		MayWriteThroughPointerOperands |
		MayCapturePointerOperands
)

// Common capability sets.
const (
	CapsPureArithmetic = IsNonCommutative |
		DoesNotMutateExistingStorage |
		DoesNotAllocateStorage |
		DoesNotReadExistingMutableStorage |
		DoesNotThrow |
		DoesNotReadThroughPointerOperands |
		DoesNotWriteThroughPointerOperands |
		DoesNotCapturePointerOperands

	CapsCommutativeArithmetic = CapsPureArithmetic&^IsNonCommutative | IsCommutative

	CapsCall = IsNonCommutative |
		MayMutateExistingStorage |
		MayAllocateStorage |
		MayReadExistingMutableStorage |
		MayThrow |
		MayReadThroughPointerOperands |
		MayWriteThroughPointerOperands |
		MayCapturePointerOperands

	CapsControl = CapsPureArithmetic

	CapsMeta = CapsPureArithmetic | IsMetaOperator
)

var capabilityNames = []struct {
	flag OperatorCapabilities
	name string
}{
	{IsCommutative, "Commutative"},
	{IsNonCommutative, "NonCommutative"},
	{MayMutateExistingStorage, "MayMutate"},
	{DoesNotMutateExistingStorage, "NoMutate"},
	{MayAllocateStorage, "MayAllocate"},
	{DoesNotAllocateStorage, "NoAllocate"},
	{MayReadExistingMutableStorage, "MayRead"},
	{DoesNotReadExistingMutableStorage, "NoRead"},
	{MayThrow, "MayThrow"},
	{DoesNotThrow, "NoThrow"},
	{MayReadThroughPointerOperands, "MayReadPtr"},
	{DoesNotReadThroughPointerOperands, "NoReadPtr"},
	{MayWriteThroughPointerOperands, "MayWritePtr"},
	{DoesNotWriteThroughPointerOperands, "NoWritePtr"},
	{MayCapturePointerOperands, "MayCapturePtr"},
	{DoesNotCapturePointerOperands, "NoCapturePtr"},
	{IsMetaOperator, "Meta"},
}

// Validate checks that exactly one flag of every pair is set.
func (c OperatorCapabilities) Validate() error {
	if c&^(MutuallyExclusive|MutuallyExclusive<<1|IsMetaOperator) != 0 {
		return fmt.Errorf("ir: unknown capability bits %#x", uint32(c))
	}
	positive := c & MutuallyExclusive
	negative := (c >> 1) & MutuallyExclusive
	if positive&negative != 0 {
		return fmt.Errorf("ir: conflicting capabilities %s", c)
	}
	if positive^negative != MutuallyExclusive {
		return fmt.Errorf("ir: incomplete capabilities %s", c)
	}
	return nil
}

func (c OperatorCapabilities) Has(flag OperatorCapabilities) bool { return c&flag == flag }

func (c OperatorCapabilities) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
