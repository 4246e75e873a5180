package vmcore

import "t81vm/internal/tisc"

// Interpreter is the single-threaded, synchronous execution engine from
// spec §4.3. It owns the current Program, the hashable State, the call
// stack (kept separate from the data stack in memory[Stack] per the
// design notes), and the deferred preload trap produced by Load.
type Interpreter struct {
	program     []tisc.Insn
	state       State
	preloadTrap Trap
	hasPreload  bool
	callStack   []int
	steps       uint64
}

// NewInterpreter builds an interpreter with no program loaded; State().Halted
// stays false but PC >= Code.Limit (both zero), so Step immediately faults
// DecodeFault until LoadProgram is called.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// State returns the current hashable state snapshot.
func (vm *Interpreter) State() *State {
	return &vm.state
}

// LoadProgram replaces the current state with a fresh initial state built by
// the loader; it clears all handle pools, the call stack, and the step
// counter, per spec §4.3.
func (vm *Interpreter) LoadProgram(program tisc.Program) {
	loaded := Load(program)
	vm.program = loaded.Program.Insns
	vm.state = loaded.Initial
	vm.preloadTrap = loaded.PreloadTrap
	vm.hasPreload = loaded.HasPreload
	vm.callStack = nil
	vm.steps = 0
}

// SetRegister is the sole externally permitted state mutation besides
// LoadProgram/Step (spec §5): it is range-checked and silently ignored for
// an out-of-range index, mirroring the embedding facade's contract.
func (vm *Interpreter) SetRegister(idx int, value int64, tag ValueTag) {
	if idx >= 0 && idx < NumRegisters {
		vm.state.setRegister(idx, value, tag)
	}
}

func (vm *Interpreter) currentOpcode() tisc.Opcode {
	if vm.state.PC >= 0 && vm.state.PC < len(vm.program) {
		return vm.program[vm.state.PC].Opcode
	}
	return tisc.Nop
}

func (vm *Interpreter) fault(tr Trap, opcode tisc.Opcode, pc int, a, b, c int64, seg Segment, detail string) Trap {
	vm.state.Trace = append(vm.state.Trace, TraceEntry{PC: pc, Opcode: opcode, HasTrap: true, Trap: tr})
	vm.state.LastTrapPayload = &TrapPayload{Trap: tr, PC: pc, Opcode: opcode, A: a, B: b, C: c, Segment: seg, Detail: detail}
	vm.hasPreload = false
	return tr
}

func (vm *Interpreter) ok(opcode tisc.Opcode, pc int) Trap {
	vm.state.Trace = append(vm.state.Trace, TraceEntry{PC: pc, Opcode: opcode})
	return None
}

func (vm *Interpreter) okWrite(opcode tisc.Opcode, pc, reg int, value int64, tag ValueTag, setFlags bool) Trap {
	vm.state.setRegister(reg, value, tag)
	if setFlags {
		vm.state.Flags = flagsFor(value)
	}
	vm.state.Trace = append(vm.state.Trace, TraceEntry{
		PC: pc, Opcode: opcode, HasWrite: true, WriteReg: reg, WriteValue: value, WriteTag: tag,
	})
	return None
}

func (vm *Interpreter) axion(opcode tisc.Opcode, pc int, reason string) {
	vm.state.AxionLog = append(vm.state.AxionLog, AxionLogEntry{PC: pc, Opcode: opcode, Reason: reason})
}

func (vm *Interpreter) validMem(addr int64) bool {
	if addr < 0 || addr >= int64(len(vm.state.Memory)) {
		return false
	}
	return vm.state.Layout.SegmentOf(int(addr)) != SegUnknown
}

func (vm *Interpreter) segmentOfOrUnknown(addr int64) Segment {
	if addr < 0 || addr >= int64(len(vm.state.Memory)) {
		return SegUnknown
	}
	return vm.state.Layout.SegmentOf(int(addr))
}

// Step executes one instruction. It returns None on success and otherwise
// one of the closed Trap values, per spec §4.3.
func (vm *Interpreter) Step() Trap {
	if vm.state.Halted {
		return None
	}

	// The payload describes only the most recent step; fault sets it again.
	vm.state.LastTrapPayload = nil

	if vm.hasPreload {
		tr := vm.preloadTrap
		return vm.fault(tr, vm.currentOpcode(), vm.state.PC, 0, 0, 0, SegUnknown, "")
	}

	if vm.state.PC >= vm.state.Layout.Code.Limit {
		return vm.fault(DecodeFault, tisc.Nop, vm.state.PC, 0, 0, 0, SegUnknown, "")
	}

	pc := vm.state.PC
	insn := vm.program[pc]

	vm.steps++
	if vm.steps%deterministicGCInterval == 0 {
		vm.state.GCCycles++
	}

	switch insn.Opcode {

	// --- Control ---
	case tisc.Nop:
		vm.state.PC++
		return vm.ok(insn.Opcode, pc)
	case tisc.Halt:
		vm.state.Halted = true
		vm.state.PC++
		return vm.ok(insn.Opcode, pc)
	case tisc.Trap:
		return vm.fault(TrapInstruction, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")

	// --- Moves & immediates ---
	case tisc.LoadImm:
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), insn.B, Int, true)
	case tisc.Mov:
		val := vm.state.Registers[insn.B]
		tag := vm.state.RegisterTags[insn.B]
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, tag, true)
	case tisc.Inc:
		val := vm.state.Registers[insn.A] + 1
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, Int, true)
	case tisc.Dec:
		val := vm.state.Registers[insn.A] - 1
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, Int, true)
	case tisc.Neg:
		val := -vm.state.Registers[insn.B]
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, Int, true)

	// --- Memory ---
	case tisc.Load:
		if !vm.validMem(insn.B) {
			seg := vm.segmentOfOrUnknown(insn.B)
			vm.axion(insn.Opcode, pc, "bounds fault segment="+seg.String()+" addr="+itoa(int(insn.B))+" action=memory load")
			return vm.fault(BoundsFault, insn.Opcode, pc, insn.A, insn.B, insn.C, seg, "memory load")
		}
		val := vm.state.Memory[insn.B]
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, Int, true)
	case tisc.Store:
		if !vm.validMem(insn.A) {
			seg := vm.segmentOfOrUnknown(insn.A)
			vm.axion(insn.Opcode, pc, "bounds fault segment="+seg.String()+" addr="+itoa(int(insn.A))+" action=memory store")
			return vm.fault(BoundsFault, insn.Opcode, pc, insn.A, insn.B, insn.C, seg, "memory store")
		}
		vm.state.Memory[insn.A] = vm.state.Registers[insn.B]
		vm.axion(insn.Opcode, pc, "segment access "+vm.state.Layout.SegmentOf(int(insn.A)).String())
		vm.state.PC++
		return vm.ok(insn.Opcode, pc)

	// --- Integer/float/fraction ALU ---
	case tisc.Add, tisc.Sub, tisc.Mul, tisc.Div, tisc.Mod,
		tisc.FAdd, tisc.FSub, tisc.FMul, tisc.FDiv,
		tisc.FracAdd, tisc.FracSub, tisc.FracMul, tisc.FracDiv:
		return vm.execALU(insn, pc)

	// --- Conversions (identity moves preserving tag) ---
	case tisc.I2F, tisc.F2I, tisc.I2Frac, tisc.Frac2I:
		val := vm.state.Registers[insn.B]
		tag := vm.state.RegisterTags[insn.B]
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, tag, true)

	// --- Comparisons ---
	case tisc.Cmp:
		diff := vm.state.Registers[insn.A] - vm.state.Registers[insn.B]
		vm.state.Flags = flagsFor(diff)
		vm.state.PC++
		return vm.ok(insn.Opcode, pc)
	case tisc.Less, tisc.LessEqual, tisc.Greater, tisc.GreaterEqual, tisc.Equal, tisc.NotEqual:
		return vm.execCompare(insn, pc)

	// --- Ternary logic ---
	case tisc.TNot, tisc.TAnd, tisc.TOr, tisc.TXor:
		return vm.execTernary(insn, pc)

	// --- Branches ---
	case tisc.Jump:
		return vm.jumpTo(insn.A, insn.Opcode, pc)
	case tisc.JumpIfZero:
		return vm.condJump(vm.state.Flags.Zero, insn, pc)
	case tisc.JumpIfNotZero:
		return vm.condJump(!vm.state.Flags.Zero, insn, pc)
	case tisc.JumpIfNegative:
		return vm.condJump(vm.state.Flags.Negative, insn, pc)
	case tisc.JumpIfPositive:
		return vm.condJump(vm.state.Flags.Positive, insn, pc)

	// --- Calls ---
	case tisc.Call:
		target := vm.state.Registers[insn.A]
		if target < 0 || target >= int64(len(vm.program)) {
			return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		vm.callStack = append(vm.callStack, pc+1)
		vm.state.PC = int(target)
		return vm.ok(insn.Opcode, pc)
	case tisc.Ret:
		if len(vm.callStack) == 0 {
			return vm.fault(StackFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		top := vm.callStack[len(vm.callStack)-1]
		vm.callStack = vm.callStack[:len(vm.callStack)-1]
		vm.state.PC = top
		return vm.ok(insn.Opcode, pc)

	// --- Data stack ---
	case tisc.Push:
		if vm.state.SP == 0 || vm.state.SP-1 < vm.state.Layout.Stack.Start {
			vm.axion(insn.Opcode, pc, "bounds fault segment=stack addr="+itoa(vm.state.SP)+" action=stack push")
			return vm.fault(StackFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegStack, "stack push")
		}
		vm.state.SP--
		vm.state.Memory[vm.state.SP] = vm.state.Registers[insn.A]
		vm.state.PC++
		return vm.ok(insn.Opcode, pc)
	case tisc.Pop:
		if vm.state.SP >= vm.state.Layout.Stack.Limit {
			vm.axion(insn.Opcode, pc, "bounds fault segment=stack addr="+itoa(vm.state.SP)+" action=stack pop")
			return vm.fault(StackFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegStack, "stack pop")
		}
		val := vm.state.Memory[vm.state.SP]
		vm.state.SP++
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, Int, true)

	// --- Frame allocation ---
	case tisc.StackAlloc:
		return vm.execStackAlloc(insn, pc)
	case tisc.StackFree:
		return vm.execStackFree(insn, pc)
	case tisc.HeapAlloc:
		return vm.execHeapAlloc(insn, pc)
	case tisc.HeapFree:
		return vm.execHeapFree(insn, pc)

	// --- Tensor pool ---
	case tisc.TVecAdd, tisc.TVecMul, tisc.TMatMul, tisc.TTenDot, tisc.TTranspose,
		tisc.TExp, tisc.TSqrt, tisc.TSiLU, tisc.TSoftmax, tisc.TRMSNorm, tisc.TRoPE,
		tisc.ChkShape, tisc.WeightsLoad, tisc.SetF:
		return vm.execTensor(insn, pc)

	// --- Structured values ---
	case tisc.MakeOptionSome, tisc.MakeOptionNone, tisc.OptionIsSome, tisc.OptionUnwrap,
		tisc.MakeResultOk, tisc.MakeResultErr, tisc.ResultIsOk, tisc.ResultUnwrapOk, tisc.ResultUnwrapErr,
		tisc.MakeEnumVariant, tisc.MakeEnumVariantPayload, tisc.EnumIsVariant, tisc.EnumUnwrapPayload:
		return vm.execStructured(insn, pc)

	// --- Axion guard opcodes ---
	case tisc.AxRead, tisc.AxSet, tisc.AxVerify:
		return vm.execAxionGuard(insn, pc)

	default:
		return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
	}
}

// RunToHalt steps the VM up to maxSteps times. It forwards the first trap
// Step returns; exhausting the budget without halting returns
// TrapInstruction (the watchdog reuse called out in spec §4.3/§7).
func (vm *Interpreter) RunToHalt(maxSteps int) Trap {
	for i := 0; i < maxSteps; i++ {
		if tr := vm.Step(); tr != None {
			return tr
		}
		if vm.state.Halted {
			return None
		}
	}
	return TrapInstruction
}

func (vm *Interpreter) jumpTo(target int64, opcode tisc.Opcode, pc int) Trap {
	if target < 0 || target >= int64(len(vm.program)) {
		return vm.fault(DecodeFault, opcode, pc, target, 0, 0, SegUnknown, "")
	}
	vm.state.PC = int(target)
	return vm.ok(opcode, pc)
}

func (vm *Interpreter) condJump(taken bool, insn tisc.Insn, pc int) Trap {
	if taken {
		return vm.jumpTo(insn.A, insn.Opcode, pc)
	}
	vm.state.PC++
	return vm.ok(insn.Opcode, pc)
}

func (vm *Interpreter) execALU(insn tisc.Insn, pc int) Trap {
	lhs := vm.state.Registers[insn.B]
	rhs := vm.state.Registers[insn.C]

	isDiv := insn.Opcode == tisc.Div || insn.Opcode == tisc.Mod ||
		insn.Opcode == tisc.FDiv || insn.Opcode == tisc.FracDiv
	if isDiv && rhs == 0 {
		return vm.fault(DivisionFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "division by zero")
	}

	var result int64
	switch insn.Opcode {
	case tisc.Add, tisc.FAdd, tisc.FracAdd:
		result = lhs + rhs
	case tisc.Sub, tisc.FSub, tisc.FracSub:
		result = lhs - rhs
	case tisc.Mul, tisc.FMul, tisc.FracMul:
		result = lhs * rhs
	case tisc.Div, tisc.FDiv, tisc.FracDiv:
		result = lhs / rhs
	default: // Mod
		result = lhs % rhs
	}

	vm.state.PC++
	return vm.okWrite(insn.Opcode, pc, int(insn.A), result, Int, true)
}

func (vm *Interpreter) execCompare(insn tisc.Insn, pc int) Trap {
	lhs := vm.state.Registers[insn.B]
	rhs := vm.state.Registers[insn.C]
	var result bool
	switch insn.Opcode {
	case tisc.Less:
		result = lhs < rhs
	case tisc.LessEqual:
		result = lhs <= rhs
	case tisc.Greater:
		result = lhs > rhs
	case tisc.GreaterEqual:
		result = lhs >= rhs
	case tisc.Equal:
		result = lhs == rhs
	default: // NotEqual
		result = lhs != rhs
	}
	val := int64(0)
	if result {
		val = 1
	}
	vm.state.PC++
	return vm.okWrite(insn.Opcode, pc, int(insn.A), val, Int, true)
}

func clamp1(v int64) int64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}

func (vm *Interpreter) execTernary(insn tisc.Insn, pc int) Trap {
	var result int64
	switch insn.Opcode {
	case tisc.TNot:
		result = -clamp1(vm.state.Registers[insn.B])
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), result, Int, false)
	case tisc.TAnd:
		lhs, rhs := clamp1(vm.state.Registers[insn.B]), clamp1(vm.state.Registers[insn.C])
		result = min64(lhs, rhs)
	case tisc.TOr:
		lhs, rhs := clamp1(vm.state.Registers[insn.B]), clamp1(vm.state.Registers[insn.C])
		result = max64(lhs, rhs)
	default: // TXor
		lhs, rhs := clamp1(vm.state.Registers[insn.B]), clamp1(vm.state.Registers[insn.C])
		result = lhs - rhs
		if result > 1 {
			result = -1
		} else if result < -1 {
			result = 1
		}
	}
	vm.state.PC++
	return vm.okWrite(insn.Opcode, pc, int(insn.A), result, Int, false)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (vm *Interpreter) execStackAlloc(insn tisc.Insn, pc int) Trap {
	if insn.B <= 0 {
		return vm.fault(StackFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegStack, "stack frame allocate")
	}
	bytes := int(insn.B)
	if bytes > vm.state.SP || vm.state.SP-bytes < vm.state.Layout.Stack.Start {
		vm.axion(insn.Opcode, pc, "bounds fault segment=stack addr="+itoa(int(insn.B))+" action=stack frame allocate")
		return vm.fault(StackFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegStack, "stack frame allocate")
	}
	vm.state.SP -= bytes
	vm.state.StackFrames = append(vm.state.StackFrames, Frame{Start: vm.state.SP, Size: bytes})
	vm.axion(insn.Opcode, pc, "stack frame allocated")
	vm.state.PC++
	return vm.okWrite(insn.Opcode, pc, int(insn.A), int64(vm.state.SP), Int, false)
}

func (vm *Interpreter) execStackFree(insn tisc.Insn, pc int) Trap {
	if len(vm.state.StackFrames) == 0 {
		return vm.fault(StackFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegStack, "stack frame free")
	}
	top := vm.state.StackFrames[len(vm.state.StackFrames)-1]
	expected := int(vm.state.Registers[insn.A])
	requested := 0
	if insn.B > 0 {
		requested = int(insn.B)
	}
	if expected != top.Start || requested != top.Size {
		return vm.fault(StackFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegStack, "stack frame free")
	}
	vm.state.StackFrames = vm.state.StackFrames[:len(vm.state.StackFrames)-1]
	vm.state.SP += top.Size
	vm.axion(insn.Opcode, pc, "stack frame freed")
	vm.state.PC++
	return vm.ok(insn.Opcode, pc)
}

func (vm *Interpreter) execHeapAlloc(insn tisc.Insn, pc int) Trap {
	if insn.B <= 0 {
		return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegHeap, "heap block allocate")
	}
	bytes := int(insn.B)
	if vm.state.HeapPtr+bytes > vm.state.Layout.Heap.Limit {
		vm.axion(insn.Opcode, pc, "bounds fault segment=heap addr="+itoa(int(insn.B))+" action=heap block allocate")
		return vm.fault(BoundsFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegHeap, "heap block allocate")
	}
	addr := vm.state.HeapPtr
	vm.state.HeapPtr += bytes
	vm.state.HeapFrames = append(vm.state.HeapFrames, Frame{Start: addr, Size: bytes})
	vm.axion(insn.Opcode, pc, "heap block allocated")
	vm.state.PC++
	return vm.okWrite(insn.Opcode, pc, int(insn.A), int64(addr), Int, false)
}

func (vm *Interpreter) execHeapFree(insn tisc.Insn, pc int) Trap {
	if len(vm.state.HeapFrames) == 0 {
		return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegHeap, "heap block free")
	}
	top := vm.state.HeapFrames[len(vm.state.HeapFrames)-1]
	expected := int(vm.state.Registers[insn.A])
	requested := 0
	if insn.B > 0 {
		requested = int(insn.B)
	}
	if expected != top.Start || requested != top.Size {
		return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegHeap, "heap block free")
	}
	vm.state.HeapFrames = vm.state.HeapFrames[:len(vm.state.HeapFrames)-1]
	vm.state.HeapPtr = top.Start
	vm.axion(insn.Opcode, pc, "heap block freed")
	vm.state.PC++
	return vm.ok(insn.Opcode, pc)
}

// itoa avoids pulling strconv into the hot dispatch path's imports list
// twice; it's a tiny, allocation-light decimal formatter for axion log text.
func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
