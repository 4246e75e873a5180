package vmcore

import "t81vm/internal/tisc"

func (vm *Interpreter) optionAt(reg int64) (OptionValue, Trap) {
	if vm.state.RegisterTags[reg] != OptionHandle {
		return OptionValue{}, TypeFault
	}
	h := vm.state.Registers[reg]
	if h < 1 || int(h) > len(vm.state.OptionPool) {
		return OptionValue{}, DecodeFault
	}
	return vm.state.OptionPool[h-1], None
}

func (vm *Interpreter) resultAt(reg int64) (ResultValue, Trap) {
	if vm.state.RegisterTags[reg] != ResultHandle {
		return ResultValue{}, TypeFault
	}
	h := vm.state.Registers[reg]
	if h < 1 || int(h) > len(vm.state.ResultPool) {
		return ResultValue{}, DecodeFault
	}
	return vm.state.ResultPool[h-1], None
}

func (vm *Interpreter) enumAt(reg int64) (EnumValue, Trap) {
	if vm.state.RegisterTags[reg] != EnumHandle {
		return EnumValue{}, TypeFault
	}
	h := vm.state.Registers[reg]
	if h < 1 || int(h) > len(vm.state.EnumPool) {
		return EnumValue{}, DecodeFault
	}
	return vm.state.EnumPool[h-1], None
}

// execStructured dispatches the option/result/enum handle-pool family from
// §4.3: each constructor interns a pooled value and hands back a 1-based
// handle, each accessor tag-checks before reading it.
func (vm *Interpreter) execStructured(insn tisc.Insn, pc int) Trap {
	switch insn.Opcode {

	case tisc.MakeOptionSome:
		vm.state.OptionPool = append(vm.state.OptionPool, OptionValue{HasValue: true, Payload: vm.state.Registers[insn.B]})
		handle := int64(len(vm.state.OptionPool))
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, OptionHandle, false)

	case tisc.MakeOptionNone:
		vm.state.OptionPool = append(vm.state.OptionPool, OptionValue{HasValue: false})
		handle := int64(len(vm.state.OptionPool))
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, OptionHandle, false)

	case tisc.OptionIsSome:
		opt, trap := vm.optionAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		val := int64(0)
		if opt.HasValue {
			val = 1
		}
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, Int, false)

	case tisc.OptionUnwrap:
		opt, trap := vm.optionAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		if !opt.HasValue {
			return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), opt.Payload, Int, false)

	case tisc.MakeResultOk:
		vm.state.ResultPool = append(vm.state.ResultPool, ResultValue{IsOk: true, Value: vm.state.Registers[insn.B]})
		handle := int64(len(vm.state.ResultPool))
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, ResultHandle, false)

	case tisc.MakeResultErr:
		vm.state.ResultPool = append(vm.state.ResultPool, ResultValue{IsOk: false, Value: vm.state.Registers[insn.B]})
		handle := int64(len(vm.state.ResultPool))
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, ResultHandle, false)

	case tisc.ResultIsOk:
		res, trap := vm.resultAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		val := int64(0)
		if res.IsOk {
			val = 1
		}
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, Int, false)

	case tisc.ResultUnwrapOk:
		res, trap := vm.resultAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		if !res.IsOk {
			return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), res.Value, Int, false)

	case tisc.ResultUnwrapErr:
		res, trap := vm.resultAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		if res.IsOk {
			return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), res.Value, Int, false)

	case tisc.MakeEnumVariant:
		vm.state.EnumPool = append(vm.state.EnumPool, EnumValue{Variant: insn.B})
		handle := int64(len(vm.state.EnumPool))
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, EnumHandle, false)

	case tisc.MakeEnumVariantPayload:
		if insn.C < 0 {
			return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		vm.state.EnumPool = append(vm.state.EnumPool, EnumValue{
			Variant: insn.C, HasPayload: true, Payload: vm.state.Registers[insn.B],
		})
		handle := int64(len(vm.state.EnumPool))
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, EnumHandle, false)

	case tisc.EnumIsVariant:
		en, trap := vm.enumAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		val := int64(0)
		if en.Variant == insn.C {
			val = 1
		}
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, Int, false)

	case tisc.EnumUnwrapPayload:
		en, trap := vm.enumAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		if !en.HasPayload {
			return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), en.Payload, Int, false)

	default:
		return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
	}
}
