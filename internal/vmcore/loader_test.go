package vmcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"t81vm/internal/tisc"
)

func TestLoadComputesSegmentLayout(t *testing.T) {
	loaded := Load(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.Nop}, {Opcode: tisc.Halt}}})

	layout := loaded.Initial.Layout
	assert.Equal(t, Range{0, 2}, layout.Code)
	assert.Equal(t, layout.Code.Limit, layout.Stack.Start)
	assert.Equal(t, layout.Stack.Limit, layout.Heap.Start)
	assert.Equal(t, layout.Heap.Limit, layout.Tensor.Start)
	assert.Equal(t, layout.Tensor.Limit, layout.Meta.Start)
	assert.Equal(t, layout.Meta.Limit, layout.TotalSize())

	assert.Equal(t, layout.Stack.Limit, loaded.Initial.SP)
	assert.Equal(t, layout.Heap.Start, loaded.Initial.HeapPtr)
}

func TestLoadParsesPolicyTier(t *testing.T) {
	loaded := Load(tisc.Program{
		Insns:           []tisc.Insn{{Opcode: tisc.Nop}},
		AxionPolicyText: "(policy (tier 3) (other stuff))",
	})
	require.NotNil(t, loaded.Initial.Policy)
	assert.Equal(t, 3, loaded.Initial.Policy.Tier)
}

func TestLoadWithoutPolicyTextLeavesPolicyNil(t *testing.T) {
	loaded := Load(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.Nop}}})
	assert.Nil(t, loaded.Initial.Policy)
}

func TestLoadDefersValidatorFailureAsPreloadTrap(t *testing.T) {
	loaded := Load(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.LoadImm, A: 999, B: 1}}})
	assert.True(t, loaded.HasPreload)
	assert.Equal(t, DecodeFault, loaded.PreloadTrap)

	vm := NewInterpreter()
	vm.LoadProgram(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.LoadImm, A: 999, B: 1}}})
	assert.Equal(t, DecodeFault, vm.Step())
}

func TestStackAllocExactBudgetSucceedsOneMoreTraps(t *testing.T) {
	vm := NewInterpreter()
	vm.LoadProgram(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.Nop}}})
	budget := int64(vm.state.Layout.Stack.Len())

	vm.state.Registers[0] = 0
	trap := vm.execStackAlloc(tisc.Insn{Opcode: tisc.StackAlloc, A: 0, B: budget}, 0)
	assert.Equal(t, None, trap)

	vm2 := NewInterpreter()
	vm2.LoadProgram(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.Nop}}})
	trap2 := vm2.execStackAlloc(tisc.Insn{Opcode: tisc.StackAlloc, A: 0, B: budget + 1}, 0)
	assert.Equal(t, StackFault, trap2)
}

func TestHeapAllocUntilLimitThenBoundsFault(t *testing.T) {
	vm := NewInterpreter()
	vm.LoadProgram(tisc.Program{Insns: []tisc.Insn{{Opcode: tisc.Nop}}})
	budget := int64(vm.state.Layout.Heap.Len())

	trap := vm.execHeapAlloc(tisc.Insn{Opcode: tisc.HeapAlloc, A: 0, B: budget}, 0)
	assert.Equal(t, None, trap)
	assert.Equal(t, vm.state.Layout.Heap.Limit, vm.state.HeapPtr)

	trap = vm.execHeapAlloc(tisc.Insn{Opcode: tisc.HeapAlloc, A: 0, B: 1}, 1)
	assert.Equal(t, BoundsFault, trap)
}
