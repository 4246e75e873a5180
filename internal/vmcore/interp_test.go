package vmcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"t81vm/internal/tisc"
)

func run(t *testing.T, insns []tisc.Insn, policyText string, maxSteps int) *Interpreter {
	t.Helper()
	vm := NewInterpreter()
	vm.LoadProgram(tisc.Program{Insns: insns, AxionPolicyText: policyText})
	vm.RunToHalt(maxSteps)
	return vm
}

func TestDivModHaltCleanly(t *testing.T) {
	vm := run(t, []tisc.Insn{
		{Opcode: tisc.LoadImm, A: 0, B: 10},
		{Opcode: tisc.LoadImm, A: 1, B: 3},
		{Opcode: tisc.Div, A: 2, B: 0, C: 1},
		{Opcode: tisc.Mod, A: 3, B: 0, C: 1},
		{Opcode: tisc.Halt},
	}, "", 10)

	s := vm.State()
	assert.True(t, s.Halted)
	assert.Equal(t, int64(3), s.Registers[2])
	assert.Equal(t, int64(1), s.Registers[3])
	assert.Nil(t, s.LastTrapPayload)
}

func TestDivisionByZeroTraps(t *testing.T) {
	vm := run(t, []tisc.Insn{
		{Opcode: tisc.LoadImm, A: 0, B: 5},
		{Opcode: tisc.LoadImm, A: 1, B: 0},
		{Opcode: tisc.Div, A: 2, B: 0, C: 1},
	}, "", 10)

	s := vm.State()
	require.NotNil(t, s.LastTrapPayload)
	assert.Equal(t, DivisionFault, s.LastTrapPayload.Trap)
	assert.Equal(t, "division by zero", s.LastTrapPayload.Detail)
	assert.Equal(t, tisc.Div, s.LastTrapPayload.Opcode)
}

func TestJumpIfZeroSkipsInstruction(t *testing.T) {
	vm := run(t, []tisc.Insn{
		{Opcode: tisc.LoadImm, A: 0, B: 0},
		{Opcode: tisc.JumpIfZero, A: 3},
		{Opcode: tisc.LoadImm, A: 1, B: 1},
		{Opcode: tisc.Halt},
	}, "", 10)

	s := vm.State()
	assert.Equal(t, int64(0), s.Registers[1])
	assert.True(t, s.Flags.Zero)
	assert.True(t, s.Halted)
}

func TestAxionGuardDeniedAtTierZero(t *testing.T) {
	vm := run(t, []tisc.Insn{
		{Opcode: tisc.AxRead, A: 0, B: 1},
	}, "(policy (tier 0))", 10)

	s := vm.State()
	require.NotNil(t, s.LastTrapPayload)
	assert.Equal(t, SecurityFault, s.LastTrapPayload.Trap)
	require.NotEmpty(t, s.AxionLog)
	assert.Contains(t, s.AxionLog[len(s.AxionLog)-1].Reason, "deny=tier0")
}

func TestLoadBoundsFaultLogsAxionEntry(t *testing.T) {
	vm := run(t, []tisc.Insn{
		{Opcode: tisc.Load, A: 0, B: 9999},
	}, "", 10)

	s := vm.State()
	require.NotNil(t, s.LastTrapPayload)
	assert.Equal(t, BoundsFault, s.LastTrapPayload.Trap)
	require.NotEmpty(t, s.AxionLog)
	entry := s.AxionLog[len(s.AxionLog)-1].Reason
	assert.Contains(t, entry, "bounds fault segment=unknown")
	assert.Contains(t, entry, "addr=9999")
	assert.Contains(t, entry, "action=memory load")
}

func TestStoreBoundsFaultLogsAxionEntry(t *testing.T) {
	vm := run(t, []tisc.Insn{
		{Opcode: tisc.Store, A: 9999, B: 0},
	}, "", 10)

	s := vm.State()
	require.NotNil(t, s.LastTrapPayload)
	assert.Equal(t, BoundsFault, s.LastTrapPayload.Trap)
	require.NotEmpty(t, s.AxionLog)
	entry := s.AxionLog[len(s.AxionLog)-1].Reason
	assert.Contains(t, entry, "bounds fault segment=unknown")
	assert.Contains(t, entry, "addr=9999")
	assert.Contains(t, entry, "action=memory store")
}

func TestStackAllocBoundsFaultLogsRequestedSize(t *testing.T) {
	vm := NewInterpreter()
	vm.LoadProgram(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.Nop}}})
	budget := int64(vm.state.Layout.Stack.Len())

	trap := vm.execStackAlloc(tisc.Insn{Opcode: tisc.StackAlloc, A: 0, B: budget + 5}, 0)
	assert.Equal(t, StackFault, trap)
	require.NotEmpty(t, vm.state.AxionLog)
	assert.Contains(t, vm.state.AxionLog[len(vm.state.AxionLog)-1].Reason, "addr="+itoa(int(budget+5)))
}

func TestHeapAllocBoundsFaultLogsRequestedSize(t *testing.T) {
	vm := NewInterpreter()
	vm.LoadProgram(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.Nop}}})
	budget := int64(vm.state.Layout.Heap.Len())

	trap := vm.execHeapAlloc(tisc.Insn{Opcode: tisc.HeapAlloc, A: 0, B: budget + 5}, 0)
	assert.Equal(t, BoundsFault, trap)
	require.NotEmpty(t, vm.state.AxionLog)
	assert.Contains(t, vm.state.AxionLog[len(vm.state.AxionLog)-1].Reason, "addr="+itoa(int(budget+5)))
}

func TestTVecAddInternsNewTensor(t *testing.T) {
	vm := NewInterpreter()
	vm.LoadProgram(tisc.Program{Insns: []tisc.Insn{
		{Opcode: tisc.TVecAdd, A: 3, B: 1, C: 2},
		{Opcode: tisc.Halt},
	}})

	vm.state.TensorPool = []TensorValue{
		{Shape: []int64{3}, Data: []int64{1, 2, 3}},
		{Shape: []int64{3}, Data: []int64{4, 5, 6}},
	}
	vm.state.Registers[1], vm.state.RegisterTags[1] = 1, TensorHandle
	vm.state.Registers[2], vm.state.RegisterTags[2] = 2, TensorHandle

	trap := vm.RunToHalt(10)
	require.Equal(t, None, trap)

	s := vm.State()
	assert.Equal(t, TensorHandle, s.RegisterTags[3])
	handle := s.Registers[3]
	require.GreaterOrEqual(t, handle, int64(1))
	tensor := s.TensorPool[handle-1]
	assert.Equal(t, []int64{3}, tensor.Shape)
	assert.Equal(t, []int64{5, 7, 9}, tensor.Data)
}

func TestBoundsFaultClassifiesUnknownSegment(t *testing.T) {
	insns := make([]tisc.Insn, 0, 83)
	for i := 0; i < 80; i++ {
		insns = append(insns, tisc.Insn{Opcode: tisc.Nop})
	}
	insns = append(insns,
		tisc.Insn{Opcode: tisc.LoadImm, A: 0, B: 1},
		tisc.Insn{Opcode: tisc.Load, A: 1, B: 9999},
	)

	vm := run(t, insns, "(tier 2)", 1000)

	s := vm.State()
	require.NotNil(t, s.LastTrapPayload)
	p := s.LastTrapPayload
	assert.Equal(t, BoundsFault, p.Trap)
	assert.Equal(t, 81, p.PC)
	assert.Equal(t, tisc.Load, p.Opcode)
	assert.Equal(t, int64(1), p.A)
	assert.Equal(t, int64(9999), p.B)
	assert.Equal(t, SegUnknown, p.Segment)
	assert.Equal(t, "memory load", p.Detail)
	assert.GreaterOrEqual(t, s.GCCycles, uint64(1))
	require.NotNil(t, s.Policy)
	assert.Equal(t, 2, s.Policy.Tier)
}

func TestHaltedVMIsIdempotent(t *testing.T) {
	vm := run(t, []tisc.Insn{{Opcode: tisc.Halt}}, "", 5)
	before := vm.State().StateHash()
	trap := vm.Step()
	assert.Equal(t, None, trap)
	assert.Equal(t, before, vm.State().StateHash())
}

func TestMemoryBoundsAtLastCell(t *testing.T) {
	vm := NewInterpreter()
	vm.LoadProgram(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.Nop}}})
	last := len(vm.state.Memory) - 1

	assert.True(t, vm.validMem(int64(last)))
	assert.False(t, vm.validMem(int64(last+1)))
}

func TestValidatorRejectsOutOfRangeRegister(t *testing.T) {
	_, has := Validate(tisc.Program{Insns: []tisc.Insn{
		{Opcode: tisc.LoadImm, A: 243, B: 1},
	}})
	assert.True(t, has)
}

func TestValidatorAcceptsMaxRegisterIndex(t *testing.T) {
	_, has := Validate(tisc.Program{Insns: []tisc.Insn{
		{Opcode: tisc.LoadImm, A: 242, B: 1},
	}})
	assert.False(t, has)
}

func TestValidatorJumpTargetBoundary(t *testing.T) {
	prog := tisc.Program{Insns: []tisc.Insn{
		{Opcode: tisc.Jump, A: 1},
		{Opcode: tisc.Halt},
	}}
	_, has := Validate(prog)
	assert.False(t, has)

	prog.Insns[0].A = 2
	_, has = Validate(prog)
	assert.True(t, has)
}
