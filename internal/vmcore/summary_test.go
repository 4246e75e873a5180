package vmcore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"t81vm/internal/tisc"
)

func TestStateHashDeterministicAcrossIdenticalRuns(t *testing.T) {
	insns := []tisc.Insn{
		{Opcode: tisc.LoadImm, A: 0, B: 7},
		{Opcode: tisc.LoadImm, A: 1, B: 2},
		{Opcode: tisc.Add, A: 2, B: 0, C: 1},
		{Opcode: tisc.Halt},
	}

	vm1 := NewInterpreter()
	vm1.LoadProgram(tisc.Program{Insns: insns})
	vm2 := NewInterpreter()
	vm2.LoadProgram(tisc.Program{Insns: insns})

	for i := 0; i < len(insns); i++ {
		vm1.Step()
		vm2.Step()
		assert.Equal(t, vm1.State().StateHash(), vm2.State().StateHash())
	}
}

func TestStateHashChangesOnDivergentTrace(t *testing.T) {
	base := NewInterpreter()
	base.LoadProgram(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.LoadImm, A: 0, B: 1}, {Opcode: tisc.Halt}}})
	h1 := base.State().StateHash()
	base.Step()
	h2 := base.State().StateHash()
	assert.NotEqual(t, h1, h2)
}

func TestSummaryLineOrderAndEscaping(t *testing.T) {
	vm := NewInterpreter()
	vm.LoadProgram(tisc.Program{Insns: []tisc.Insn{
		{Opcode: tisc.LoadImm, A: 0, B: 5},
		{Opcode: tisc.LoadImm, A: 1, B: 0},
		{Opcode: tisc.Div, A: 2, B: 0, C: 1},
	}})
	vm.RunToHalt(10)

	summary := vm.State().Summary()
	lines := strings.Split(summary, "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "SNAPSHOT "))
	assert.True(t, strings.HasPrefix(lines[1], "REGISTERS "))
	assert.True(t, strings.HasPrefix(lines[2], "TRAP_PAYLOAD "))
	assert.Contains(t, lines[2], `detail="division by zero"`)
	assert.True(t, strings.HasPrefix(lines[3], "STATE_HASH 0x"))
}

func TestEscapeDetailBackslashAndQuote(t *testing.T) {
	assert.Equal(t, `a\\b\"c\nd`, EscapeDetail("a\\b\"c\nd"))
}
