package asm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tinyrange/armaot/internal/ir"
)

// OpcodeClass is the coarse classification the linker needs when it looks at
// a relocation site.
type OpcodeClass uint8

const (
	ClassOther OpcodeClass = iota
	ClassBranch
	ClassDataProcessing
)

func (c OpcodeClass) String() string {
	switch c {
	case ClassBranch:
		return "branch"
	case ClassDataProcessing:
		return "data-processing"
	default:
		return "other"
	}
}

// Opcode is one decoded instruction word.
type Opcode interface {
	Class() OpcodeClass
	Condition() ir.Comparison
	// Encode returns the instruction word, reflecting any Prepare calls.
	Encode() (uint32, error)
	String() string
}

// BranchOpcode is a PC-relative branch whose target can be rewritten.
type BranchOpcode interface {
	Opcode
	// Offset is the displacement from the PC as seen by the instruction,
	// which is PCOffset bytes past the branch itself.
	Offset() int32
	IsLink() bool
	Prepare(cond ir.Comparison, offset int32, isLink bool) error
}

// DataProcessingOpcode is an ALU instruction.
type DataProcessingOpcode interface {
	Opcode
	Operation() string
	SetsFlags() bool
}

// InstructionSet is the decode/encode service for one instruction encoding.
type InstructionSet interface {
	Name() string
	// PCOffset is how far ahead of the executing instruction the PC reads.
	PCOffset() int32
	Decode(word uint32) Opcode
	// NewBranch returns an unconditional, non-linking branch with offset 0.
	NewBranch() BranchOpcode
}

var (
	isaMu sync.RWMutex
	isas  = map[string]func() InstructionSet{}
)

// RegisterInstructionSet makes a provider available through Lookup.
func RegisterInstructionSet(name string, factory func() InstructionSet) {
	isaMu.Lock()
	defer isaMu.Unlock()
	if _, dup := isas[name]; dup {
		panic(fmt.Sprintf("asm: instruction set %q already registered", name))
	}
	isas[name] = factory
}

func LookupInstructionSet(name string) (InstructionSet, error) {
	isaMu.RLock()
	factory, ok := isas[name]
	isaMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("asm: unknown instruction set %q", name)
	}
	return factory(), nil
}

func InstructionSetNames() []string {
	isaMu.RLock()
	defer isaMu.RUnlock()
	names := make([]string, 0, len(isas))
	for name := range isas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
