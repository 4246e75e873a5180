package vmcore

import "t81vm/internal/tisc"

// Validate runs the static, pre-execution check from spec §4.1: every
// instruction's opcode must be a member of the closed tag set, its register
// operands must lie in [0, NumRegisters), and branch targets must lie in
// [0, len(insns)). The first violation wins; nothing is reported beyond
// "this program is not well-formed" (DecodeFault), matching validator.cpp's
// single-trap-value contract.
func Validate(program tisc.Program) (Trap, bool) {
	n := int64(len(program.Insns))
	validReg := func(v int64) bool { return v >= 0 && v < NumRegisters }
	validTarget := func(v int64) bool { return v >= 0 && v < n }

	for _, insn := range program.Insns {
		if !insn.Opcode.Valid() {
			return DecodeFault, true
		}

		switch insn.Opcode {
		case tisc.Nop, tisc.Halt, tisc.Trap, tisc.Ret:
			// no operands

		case tisc.LoadImm, tisc.Load:
			if !validReg(insn.A) {
				return DecodeFault, true
			}

		case tisc.Store:
			if !validReg(insn.B) {
				return DecodeFault, true
			}

		case tisc.Add, tisc.Sub, tisc.Mul, tisc.Div, tisc.Mod,
			tisc.FAdd, tisc.FSub, tisc.FMul, tisc.FDiv,
			tisc.FracAdd, tisc.FracSub, tisc.FracMul, tisc.FracDiv,
			tisc.Less, tisc.LessEqual, tisc.Greater, tisc.GreaterEqual, tisc.Equal, tisc.NotEqual,
			tisc.TVecAdd, tisc.TVecMul, tisc.TMatMul, tisc.TTenDot, tisc.ChkShape:
			if !validReg(insn.A) || !validReg(insn.B) || !validReg(insn.C) {
				return DecodeFault, true
			}

		case tisc.Cmp, tisc.Mov, tisc.Neg, tisc.I2F, tisc.F2I, tisc.I2Frac, tisc.Frac2I, tisc.SetF,
			tisc.TTranspose, tisc.TExp, tisc.TSqrt, tisc.TSiLU, tisc.TSoftmax, tisc.TRMSNorm, tisc.TRoPE,
			tisc.MakeOptionSome, tisc.OptionIsSome, tisc.OptionUnwrap,
			tisc.MakeResultOk, tisc.MakeResultErr, tisc.ResultIsOk, tisc.ResultUnwrapOk, tisc.ResultUnwrapErr,
			tisc.MakeEnumVariantPayload, tisc.EnumIsVariant, tisc.EnumUnwrapPayload, tisc.TNot:
			if !validReg(insn.A) || !validReg(insn.B) {
				return DecodeFault, true
			}

		case tisc.Inc, tisc.Dec, tisc.Push, tisc.Pop, tisc.Call,
			tisc.StackAlloc, tisc.StackFree, tisc.HeapAlloc, tisc.HeapFree,
			tisc.MakeOptionNone, tisc.MakeEnumVariant, tisc.WeightsLoad,
			tisc.AxRead, tisc.AxSet, tisc.AxVerify:
			if !validReg(insn.A) {
				return DecodeFault, true
			}

		case tisc.TAnd, tisc.TOr, tisc.TXor:
			if !validReg(insn.A) || !validReg(insn.B) || !validReg(insn.C) {
				return DecodeFault, true
			}

		case tisc.Jump, tisc.JumpIfZero, tisc.JumpIfNotZero, tisc.JumpIfNegative, tisc.JumpIfPositive:
			if !validTarget(insn.A) {
				return DecodeFault, true
			}

		default:
			return DecodeFault, true
		}
	}

	return None, false
}
