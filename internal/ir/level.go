package ir

import "fmt"

// OperatorLevel orders how far an operator has been lowered. Lower values
// are closer to machine code.
type OperatorLevel int

const (
	LevelRegisters OperatorLevel = iota
	LevelStackLocations
	LevelScalarValues
	LevelConcreteTypesNoExceptions
	LevelConcreteTypes
	LevelObjectOriented
	LevelFullyObjectOriented
)

var levelNames = [...]string{
	"Registers",
	"StackLocations",
	"ScalarValues",
	"ConcreteTypes_NoExceptions",
	"ConcreteTypes",
	"ObjectOriented",
	"FullyObjectOriented",
}

func (l OperatorLevel) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("OperatorLevel(%d)", int(l))
}

// ParseOperatorLevel accepts the names produced by String.
func ParseOperatorLevel(s string) (OperatorLevel, error) {
	for i, n := range levelNames {
		if n == s {
			return OperatorLevel(i), nil
		}
	}
	return 0, fmt.Errorf("ir: unknown operator level %q", s)
}

func maxLevel(a, b OperatorLevel) OperatorLevel {
	if a > b {
		return a
	}
	return b
}

// LevelHelper answers target questions needed to classify nodes.
type LevelHelper interface {
	FitsInPhysicalRegister(t *TypeRepresentation) bool
}

// WordSizeHelper treats anything no wider than WordSize bytes as
// register-sized.
type WordSizeHelper struct {
	WordSize int
}

func (h WordSizeHelper) FitsInPhysicalRegister(t *TypeRepresentation) bool {
	if t == nil || t.IsVoid() {
		return true
	}
	if !t.IsValueType() {
		return true
	}
	return t.Size > 0 && t.Size <= h.WordSize
}
