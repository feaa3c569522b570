package ir

import (
	"fmt"
	"sort"
	"sync"
)

// Target bundles what the IR needs to know about a code generation target.
type Target struct {
	Name      string
	WordSize  int
	HasFPU    bool
	Registers *RegisterFile
}

// FitsInPhysicalRegister implements LevelHelper.
func (t *Target) FitsInPhysicalRegister(typ *TypeRepresentation) bool {
	return WordSizeHelper{WordSize: t.WordSize}.FitsInPhysicalRegister(typ)
}

var (
	targetsMu sync.RWMutex
	targets   = make(map[string]func() *Target)
)

// RegisterTarget makes a target constructor available by name. It panics
// when the same name is registered twice so mistakes are caught during init.
func RegisterTarget(name string, build func() *Target) {
	if name == "" {
		panic("ir: cannot register target without a name")
	}
	if build == nil {
		panic("ir: target constructor must be non-nil")
	}

	targetsMu.Lock()
	defer targetsMu.Unlock()

	if _, exists := targets[name]; exists {
		panic(fmt.Sprintf("ir: target %s already registered", name))
	}
	targets[name] = build
}

// LookupTarget builds a fresh Target for name. Each call returns a new
// register file so sessions never share descriptors.
func LookupTarget(name string) (*Target, error) {
	targetsMu.RLock()
	build, ok := targets[name]
	targetsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("ir: no target registered for %q", name)
	}
	return build(), nil
}

// TargetNames lists registered targets in sorted order.
func TargetNames() []string {
	targetsMu.RLock()
	defer targetsMu.RUnlock()

	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func armTarget(name string, fpu bool) func() *Target {
	return func() *Target {
		f := NewRegisterFile()
		newARMCoreRegisters(f)
		if fpu {
			newVFPRegisters(f)
		}
		return &Target{Name: name, WordSize: 4, HasFPU: fpu, Registers: f}
	}
}

func init() {
	RegisterTarget("armv4", armTarget("armv4", false))
	RegisterTarget("armv5", armTarget("armv5", false))
	RegisterTarget("armv6m", armTarget("armv6m", false))
	RegisterTarget("armv7m", armTarget("armv7m", true))
}
