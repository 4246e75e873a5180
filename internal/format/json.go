package format

import (
	"errors"
	"io"

	jsoniter "github.com/json-iterator/go"

	"t81vm/internal/tisc"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonInsn mirrors the wire object {"opcode": "<name>", "a": <int>, "b": <int>, "c": <int>}.
type jsonInsn struct {
	Opcode string `json:"opcode"`
	A      int64  `json:"a"`
	B      int64  `json:"b"`
	C      int64  `json:"c"`
}

type jsonProgram struct {
	AxionPolicyText string     `json:"axion_policy_text,omitempty"`
	Insns           []jsonInsn `json:"insns"`
}

// ErrEmptyProgram is returned when the "insns" array is present but empty,
// which §6.3 calls out as a load error rather than a valid empty program.
var ErrEmptyProgram = errors.New("json program: insns must not be empty")

// ParseJSON reads the v1 JSON object format.
func ParseJSON(r io.Reader) (tisc.Program, error) {
	var wire jsonProgram
	if err := jsonAPI.NewDecoder(r).Decode(&wire); err != nil {
		return tisc.Program{}, err
	}
	if len(wire.Insns) == 0 {
		return tisc.Program{}, ErrEmptyProgram
	}

	program := tisc.Program{AxionPolicyText: wire.AxionPolicyText}
	for _, wi := range wire.Insns {
		opcode, ok := tisc.Lookup(wi.Opcode)
		if !ok {
			return tisc.Program{}, errors.New("json program: unknown opcode " + wi.Opcode)
		}
		program.Insns = append(program.Insns, tisc.Insn{Opcode: opcode, A: wi.A, B: wi.B, C: wi.C})
	}

	return program, nil
}

// WriteJSON renders program into the v1 JSON object format.
func WriteJSON(w io.Writer, program tisc.Program) error {
	wire := jsonProgram{AxionPolicyText: program.AxionPolicyText}
	for _, insn := range program.Insns {
		wire.Insns = append(wire.Insns, jsonInsn{
			Opcode: insn.Opcode.String(), A: insn.A, B: insn.B, C: insn.C,
		})
	}
	enc := jsonAPI.NewEncoder(w)
	return enc.Encode(wire)
}
