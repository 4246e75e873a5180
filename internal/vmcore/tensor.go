package vmcore

import (
	"math"

	"t81vm/internal/tisc"
)

func (vm *Interpreter) tensorAt(reg int64) (TensorValue, Trap) {
	if vm.state.RegisterTags[reg] != TensorHandle {
		return TensorValue{}, TypeFault
	}
	h := vm.state.Registers[reg]
	if h < 1 || int(h) > len(vm.state.TensorPool) {
		return TensorValue{}, DecodeFault
	}
	return vm.state.TensorPool[h-1], None
}

func (vm *Interpreter) shapeAt(reg int64) (ShapeValue, Trap) {
	if vm.state.RegisterTags[reg] != ShapeHandle {
		return ShapeValue{}, TypeFault
	}
	h := vm.state.Registers[reg]
	if h < 1 || int(h) > len(vm.state.ShapePool) {
		return ShapeValue{}, DecodeFault
	}
	return vm.state.ShapePool[h-1], None
}

func (vm *Interpreter) internTensor(t TensorValue) int64 {
	vm.state.TensorPool = append(vm.state.TensorPool, t)
	return int64(len(vm.state.TensorPool))
}

func cloneShape(shape []int64) []int64 {
	out := make([]int64, len(shape))
	copy(out, shape)
	return out
}

func roundNearest(v float64) int64 {
	return int64(math.Round(v))
}

// execTensor handles the tensor pool family and the two plain scalar
// register ops (WeightsLoad, SetF) that share this dispatch group in §4.3.
func (vm *Interpreter) execTensor(insn tisc.Insn, pc int) Trap {
	switch insn.Opcode {

	case tisc.TVecAdd, tisc.TVecMul:
		ta, trap := vm.tensorAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		tb, trap := vm.tensorAt(insn.C)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		if len(ta.Shape) != 1 || len(tb.Shape) != 1 || !ta.sameShape(tb) || len(ta.Data) != len(tb.Data) {
			return vm.fault(ShapeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegTensor, "")
		}
		data := make([]int64, len(ta.Data))
		for i := range data {
			if insn.Opcode == tisc.TVecAdd {
				data[i] = ta.Data[i] + tb.Data[i]
			} else {
				data[i] = ta.Data[i] * tb.Data[i]
			}
		}
		handle := vm.internTensor(TensorValue{Shape: cloneShape(ta.Shape), Data: data})
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, TensorHandle, false)

	case tisc.TMatMul:
		ta, trap := vm.tensorAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		tb, trap := vm.tensorAt(insn.C)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		if len(ta.Shape) != 2 || len(tb.Shape) != 2 || ta.Shape[1] != tb.Shape[0] {
			return vm.fault(ShapeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegTensor, "")
		}
		rows, inner, cols := ta.Shape[0], ta.Shape[1], tb.Shape[1]
		data := make([]int64, rows*cols)
		for r := int64(0); r < rows; r++ {
			for c := int64(0); c < cols; c++ {
				var sum int64
				for k := int64(0); k < inner; k++ {
					sum += ta.Data[r*inner+k] * tb.Data[k*cols+c]
				}
				data[r*cols+c] = sum
			}
		}
		handle := vm.internTensor(TensorValue{Shape: []int64{rows, cols}, Data: data})
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, TensorHandle, false)

	case tisc.TTenDot:
		ta, trap := vm.tensorAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		tb, trap := vm.tensorAt(insn.C)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		if len(ta.Data) != len(tb.Data) {
			return vm.fault(ShapeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegTensor, "")
		}
		var sum int64
		for i := range ta.Data {
			sum += ta.Data[i] * tb.Data[i]
		}
		handle := vm.internTensor(TensorValue{Shape: []int64{1}, Data: []int64{sum}})
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, TensorHandle, false)

	case tisc.TTranspose:
		ta, trap := vm.tensorAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		if len(ta.Shape) != 2 {
			return vm.fault(ShapeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegTensor, "")
		}
		rows, cols := ta.Shape[0], ta.Shape[1]
		data := make([]int64, len(ta.Data))
		for r := int64(0); r < rows; r++ {
			for c := int64(0); c < cols; c++ {
				data[c*rows+r] = ta.Data[r*cols+c]
			}
		}
		handle := vm.internTensor(TensorValue{Shape: []int64{cols, rows}, Data: data})
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, TensorHandle, false)

	case tisc.TExp, tisc.TSqrt, tisc.TSiLU, tisc.TSoftmax, tisc.TRMSNorm, tisc.TRoPE:
		return vm.execActivation(insn, pc)

	case tisc.ChkShape:
		ta, trap := vm.tensorAt(insn.B)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		sh, trap := vm.shapeAt(insn.C)
		if trap != None {
			return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
		}
		match := int64(0)
		if len(ta.Shape) == len(sh.Dims) {
			match = 1
			for i := range ta.Shape {
				if ta.Shape[i] != sh.Dims[i] {
					match = 0
					break
				}
			}
		}
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), match, Int, false)

	case tisc.WeightsLoad:
		handle := insn.B
		if handle <= 0 {
			handle = 1000 + int64(pc)
		}
		vm.axion(insn.Opcode, pc, "weights handle loaded")
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, WeightsTensorHandle, false)

	case tisc.SetF:
		val := vm.state.Registers[insn.B]
		vm.state.PC++
		return vm.okWrite(insn.Opcode, pc, int(insn.A), val, Int, false)

	default:
		return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
	}
}

func (vm *Interpreter) execActivation(insn tisc.Insn, pc int) Trap {
	ta, trap := vm.tensorAt(insn.B)
	if trap != None {
		return vm.fault(trap, insn.Opcode, pc, insn.A, insn.B, insn.C, SegUnknown, "")
	}

	var data []int64
	switch insn.Opcode {
	case tisc.TExp:
		data = make([]int64, len(ta.Data))
		for i, x := range ta.Data {
			clamped := x
			if clamped < -20 {
				clamped = -20
			} else if clamped > 20 {
				clamped = 20
			}
			data[i] = roundNearest(math.Exp(float64(clamped)))
		}

	case tisc.TSqrt:
		data = make([]int64, len(ta.Data))
		for i, x := range ta.Data {
			if x < 0 {
				x = 0
			}
			data[i] = roundNearest(math.Sqrt(float64(x)))
		}

	case tisc.TSiLU:
		data = make([]int64, len(ta.Data))
		for i, x := range ta.Data {
			fx := float64(x)
			data[i] = roundNearest(fx / (1 + math.Exp(-fx)))
		}

	case tisc.TSoftmax:
		if len(ta.Data) == 0 {
			return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegTensor, "")
		}
		max := ta.Data[0]
		for _, x := range ta.Data[1:] {
			if x > max {
				max = x
			}
		}
		exps := make([]float64, len(ta.Data))
		var sum float64
		for i, x := range ta.Data {
			exps[i] = math.Exp(float64(x - max))
			sum += exps[i]
		}
		if sum == 0 {
			return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegTensor, "")
		}
		data = make([]int64, len(ta.Data))
		for i, e := range exps {
			data[i] = roundNearest(e / sum * 1000)
		}

	case tisc.TRMSNorm:
		if len(ta.Data) == 0 {
			return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegTensor, "")
		}
		var sumSq float64
		for _, x := range ta.Data {
			sumSq += float64(x) * float64(x)
		}
		rms := math.Sqrt(sumSq / float64(len(ta.Data)))
		data = make([]int64, len(ta.Data))
		if rms == 0 {
			break
		}
		for i, x := range ta.Data {
			data[i] = roundNearest(float64(x) / rms)
		}

	default: // TRoPE
		if len(ta.Data)%2 != 0 {
			return vm.fault(DecodeFault, insn.Opcode, pc, insn.A, insn.B, insn.C, SegTensor, "")
		}
		data = make([]int64, len(ta.Data))
		for i := 0; i < len(ta.Data); i += 2 {
			x, y := ta.Data[i], ta.Data[i+1]
			data[i] = y
			data[i+1] = -x
		}
	}

	handle := vm.internTensor(TensorValue{Shape: cloneShape(ta.Shape), Data: data})
	vm.state.PC++
	return vm.okWrite(insn.Opcode, pc, int(insn.A), handle, TensorHandle, false)
}
