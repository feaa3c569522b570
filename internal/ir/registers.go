package ir

import (
	"fmt"
	"sort"
)

// RegisterClass groups registers an allocator may pick from.
type RegisterClass int

const (
	ClassInteger RegisterClass = iota
	ClassSinglePrecision
	ClassDoublePrecision
	ClassSpecial
	ClassStatus
)

func (c RegisterClass) String() string {
	switch c {
	case ClassInteger:
		return "integer"
	case ClassSinglePrecision:
		return "float32"
	case ClassDoublePrecision:
		return "float64"
	case ClassSpecial:
		return "special"
	case ClassStatus:
		return "status"
	default:
		return fmt.Sprintf("RegisterClass(%d)", int(c))
	}
}

// RegisterDescriptor describes one architectural register.
type RegisterDescriptor struct {
	Name        string
	Index       int
	Encoding    uint32
	Class       RegisterClass
	Allocatable bool

	interference []*RegisterDescriptor
}

func (r *RegisterDescriptor) String() string { return r.Name }

// InterfersWith reports whether writing r clobbers other (or the reverse).
// A register always interferes with itself.
func (r *RegisterDescriptor) InterfersWith(other *RegisterDescriptor) bool {
	if r == nil || other == nil {
		return false
	}
	if r == other {
		return true
	}
	for _, o := range r.interference {
		if o == other {
			return true
		}
	}
	return false
}

// Interference returns the registers r overlaps, excluding itself.
func (r *RegisterDescriptor) Interference() []*RegisterDescriptor {
	return append([]*RegisterDescriptor(nil), r.interference...)
}

// RegisterFile is the static register set and interference graph of a
// target.
type RegisterFile struct {
	registers []*RegisterDescriptor
	byName    map[string]*RegisterDescriptor
}

func NewRegisterFile() *RegisterFile {
	return &RegisterFile{byName: make(map[string]*RegisterDescriptor)}
}

// Add appends a register. Index is assigned from the insertion order.
func (f *RegisterFile) Add(name string, encoding uint32, class RegisterClass, allocatable bool) *RegisterDescriptor {
	if _, exists := f.byName[name]; exists {
		panic(fmt.Sprintf("ir: register %s already defined", name))
	}
	r := &RegisterDescriptor{
		Name:        name,
		Index:       len(f.registers),
		Encoding:    encoding,
		Class:       class,
		Allocatable: allocatable,
	}
	f.registers = append(f.registers, r)
	f.byName[name] = r
	return r
}

// Interfere records a symmetric overlap between a and b.
func (f *RegisterFile) Interfere(a, b *RegisterDescriptor) {
	if a == b || a.InterfersWith(b) {
		return
	}
	a.interference = append(a.interference, b)
	b.interference = append(b.interference, a)
}

func (f *RegisterFile) Lookup(name string) (*RegisterDescriptor, bool) {
	r, ok := f.byName[name]
	return r, ok
}

// MustLookup panics when name is not a register of f.
func (f *RegisterFile) MustLookup(name string) *RegisterDescriptor {
	r, ok := f.byName[name]
	if !ok {
		panic(fmt.Sprintf("ir: unknown register %s", name))
	}
	return r
}

func (f *RegisterFile) Registers() []*RegisterDescriptor {
	return append([]*RegisterDescriptor(nil), f.registers...)
}

// Allocatable lists the registers of class an allocator may assign, in
// encoding order.
func (f *RegisterFile) Allocatable(class RegisterClass) []*RegisterDescriptor {
	var out []*RegisterDescriptor
	for _, r := range f.registers {
		if r.Class == class && r.Allocatable {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Encoding < out[j].Encoding })
	return out
}

// newARMCoreRegisters defines R0-R12, SP, LR and PC. R12 is left out of the
// allocatable set since veneers clobber it.
func newARMCoreRegisters(f *RegisterFile) {
	for i := 0; i <= 11; i++ {
		f.Add(fmt.Sprintf("R%d", i), uint32(i), ClassInteger, true)
	}
	f.Add("R12", 12, ClassInteger, false)
	f.Add("SP", 13, ClassSpecial, false)
	f.Add("LR", 14, ClassSpecial, false)
	f.Add("PC", 15, ClassSpecial, false)
	f.Add("CPSR", 0, ClassStatus, false)
}

// newVFPRegisters defines S0-S31 and D0-D15 where Dn overlaps S2n and S2n+1.
func newVFPRegisters(f *RegisterFile) {
	single := make([]*RegisterDescriptor, 32)
	for i := range single {
		single[i] = f.Add(fmt.Sprintf("S%d", i), uint32(i), ClassSinglePrecision, true)
	}
	for i := 0; i < 16; i++ {
		d := f.Add(fmt.Sprintf("D%d", i), uint32(i), ClassDoublePrecision, true)
		f.Interfere(d, single[2*i])
		f.Interfere(d, single[2*i+1])
	}
}
