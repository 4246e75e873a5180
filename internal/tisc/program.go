package tisc

import "fmt"

// Insn is the 4-tuple instruction encoding from spec §3: an opcode plus
// three signed 64-bit operands reused as register indices, immediates,
// memory addresses, or branch targets depending on the opcode.
type Insn struct {
	Opcode Opcode
	A      int64
	B      int64
	C      int64
}

func (i Insn) String() string {
	return fmt.Sprintf("%s %d %d %d", i.Opcode, i.A, i.B, i.C)
}

// Program is an ordered, immutable-after-load sequence of instructions plus
// the free-form axion policy text the loader scans for a tier directive.
type Program struct {
	Insns           []Insn
	AxionPolicyText string
}
