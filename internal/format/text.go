// Package format implements the two on-disk program encodings from spec
// §6.2/§6.3: the line-oriented ".t81"/".t81vm" assembly text and the JSON v1
// object form. Both produce a tisc.Program; neither touches VM state.
package format

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"t81vm/internal/tisc"
)

// ParseTextError reports a line-numbered failure from ParseText, mirroring
// the loader-style errors gvm/parse.go returns for malformed assembly.
type ParseTextError struct {
	Line int
	Msg  string
}

func (e *ParseTextError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// ParseText reads the line-oriented .t81/.t81vm format: blank lines and
// lines starting with '#' are comments, a POLICY line passes its remainder
// verbatim into AxionPolicyText, and every other non-blank line is
// "OPCODE A B C" with A/B/C optional signed decimal integers defaulting to
// zero.
func ParseText(r io.Reader) (tisc.Program, error) {
	var program tisc.Program
	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if line == "POLICY" || strings.HasPrefix(line, "POLICY ") {
			program.AxionPolicyText = strings.TrimSpace(strings.TrimPrefix(line, "POLICY"))
			continue
		}

		fields := strings.Fields(line)
		opcode, ok := tisc.Lookup(fields[0])
		if !ok {
			return tisc.Program{}, &ParseTextError{Line: lineNo, Msg: "unknown opcode " + fields[0]}
		}

		var operands [3]int64
		for i, field := range fields[1:] {
			if i >= 3 {
				break
			}
			v, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return tisc.Program{}, &ParseTextError{Line: lineNo, Msg: "bad operand " + field}
			}
			operands[i] = v
		}

		program.Insns = append(program.Insns, tisc.Insn{
			Opcode: opcode, A: operands[0], B: operands[1], C: operands[2],
		})
	}

	if err := scanner.Err(); err != nil {
		return tisc.Program{}, err
	}

	return program, nil
}

// WriteText renders program back into the canonical .t81 text form: a
// POLICY line first (when non-empty), then one "OPCODE A B C" line per
// instruction using canonical lowercase mnemonics.
func WriteText(w io.Writer, program tisc.Program) error {
	bw := bufio.NewWriter(w)
	if program.AxionPolicyText != "" {
		if _, err := fmt.Fprintf(bw, "POLICY %s\n", program.AxionPolicyText); err != nil {
			return err
		}
	}
	for _, insn := range program.Insns {
		if _, err := fmt.Fprintf(bw, "%s %d %d %d\n", insn.Opcode, insn.A, insn.B, insn.C); err != nil {
			return err
		}
	}
	return bw.Flush()
}
