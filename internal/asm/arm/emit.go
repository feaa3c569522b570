package arm

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/armaot/internal/asm"
)

// EmitProgram lowers a fragment into little-endian A32 machine code.
func EmitProgram(fragment asm.Fragment) (asm.Program, error) {
	return EmitProgramOrder(fragment, binary.LittleEndian)
}

// EmitProgramOrder is EmitProgram for an explicit data endianness.
func EmitProgramOrder(fragment asm.Fragment, order binary.ByteOrder) (asm.Program, error) {
	if fragment == nil {
		return asm.Program{}, fmt.Errorf("arm asm: fragment is nil")
	}

	ctx := newContext(order)
	if err := fragment.Emit(ctx); err != nil {
		return asm.Program{}, err
	}
	return ctx.finalize()
}

// EmitBytes is a convenience helper returning the raw instruction stream for a fragment.
func EmitBytes(fragment asm.Fragment) ([]byte, error) {
	prog, err := EmitProgram(fragment)
	if err != nil {
		return nil, err
	}
	return prog.Bytes(), nil
}
