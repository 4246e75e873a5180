package vmcore

import "t81vm/internal/tisc"

// tierZeroGated reports whether the current policy denies a guarded opcode:
// tier absence means allow, and only tier == 0 is a deny per spec §9.
func (vm *Interpreter) tierZeroGated() bool {
	return vm.state.Policy != nil && vm.state.Policy.Tier == 0
}

// execAxionGuard handles the three security-gated opcodes from §4.3:
// AxRead, AxSet, AxVerify. Each logs an axion entry regardless of outcome
// and, when gated, traps SecurityFault instead of performing its nominal
// write.
func (vm *Interpreter) execAxionGuard(insn tisc.Insn, pc int) Trap {
	denied := vm.tierZeroGated()

	switch insn.Opcode {
	case tisc.AxRead:
		if denied {
			vm.axion(insn.Opcode, pc, axionReason("AxRead", insn.A, insn.B, true))
			return vm.fault(SecurityFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		vm.axion(insn.Opcode, pc, axionReason("AxRead", insn.A, insn.B, false))
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), insn.B, Int, false)

	case tisc.AxSet:
		if denied {
			vm.axion(insn.Opcode, pc, axionReason("AxSet", insn.A, insn.B, true))
			return vm.fault(SecurityFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		vm.axion(insn.Opcode, pc, axionReason("AxSet", insn.A, insn.B, false))
		vm.state.PC++
		return vm.ok(insn.Opcode, pc)

	default: // AxVerify
		if denied {
			vm.axion(insn.Opcode, pc, axionReason("AxVerify", insn.A, insn.B, true))
			return vm.fault(SecurityFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		vm.axion(insn.Opcode, pc, axionReason("AxVerify", insn.A, insn.B, false))
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), 0, Int, false)
	}
}

func axionReason(guard string, reg, value int64, deny bool) string {
	verdict := "allow"
	if deny {
		verdict = "deny=tier0"
	}
	return guard + " guard reg=" + itoa(int(reg)) + " value=" + itoa(int(value)) + " " + verdict
}
