// Package embed is the Go-native shape of the C-ABI-shaped embedding
// facade from spec §6.6: an opaque Handle plus a flat set of functions an
// actual cgo export shim could wrap one-to-one. Building that cgo boundary
// itself is explicitly out of scope (spec §1) — this package stops at the
// Go call surface.
package embed

import (
	"t81vm/internal/format"
	"t81vm/internal/tisc"
	"t81vm/internal/vmcore"
)

// Load result codes for Handle.LoadFile, matching §6.6's contract exactly:
// 0 OK, -1 invalid argument, -2 parse fault, or a positive trap code.
const (
	LoadOK         = 0
	LoadInvalidArg = -1
	LoadParseFault = -2
)

// Handle owns exactly one Interpreter, per the single-owner resource model
// in spec §5.
type Handle struct {
	vm *vmcore.Interpreter
}

// Create allocates a fresh, unloaded Handle.
func Create() *Handle {
	return &Handle{vm: vmcore.NewInterpreter()}
}

// Destroy releases the handle's VM. Go's GC reclaims the memory; this
// exists so the facade's shape matches a real create/destroy pair and so a
// future cgo shim has a natural free point.
func (h *Handle) Destroy() {
	h.vm = nil
}

// LoadFile parses path and loads the resulting program. It never itself
// returns a positive trap: the "positive trap code" case in §6.6 describes
// the *first Step* surfacing a preload trap, not LoadFile.
func (h *Handle) LoadFile(path string) int {
	if h == nil || h.vm == nil {
		return LoadInvalidArg
	}
	program, err := format.LoadFile(path)
	if err != nil {
		return LoadParseFault
	}
	h.vm.LoadProgram(program)
	return LoadOK
}

// LoadProgram loads an already-parsed program directly, bypassing file I/O.
func (h *Handle) LoadProgram(program tisc.Program) {
	h.vm.LoadProgram(program)
}

// Step executes one instruction and returns the trap as a positive integer,
// or 0 for None.
func (h *Handle) Step() int {
	return int(h.vm.Step())
}

// RunToHalt runs up to maxSteps instructions and returns the first trap
// encountered, or 0 for None.
func (h *Handle) RunToHalt(maxSteps int) int {
	return int(h.vm.RunToHalt(maxSteps))
}

// LastTrap reports the trap held in the current state's trap payload, or
// -1 when none is pending.
func (h *Handle) LastTrap() int {
	p := h.vm.State().LastTrapPayload
	if p == nil {
		return -1
	}
	return int(p.Trap)
}

func (h *Handle) PC() int {
	return h.vm.State().PC
}

// Halted surfaces 1 for a halted VM (including immediately after the Step
// call that halted it), 0 otherwise.
func (h *Handle) Halted() int {
	if h.vm.State().Halted {
		return 1
	}
	return 0
}

func (h *Handle) StateHash() uint64 {
	return h.vm.State().StateHash()
}

func (h *Handle) Register(i int) int64 {
	if i < 0 || i >= vmcore.NumRegisters {
		return 0
	}
	return h.vm.State().Registers[i]
}

func (h *Handle) TraceLen() int {
	return len(h.vm.State().Trace)
}

// TraceEntry is the copied-out shape §6.6 specifies: pc, opcode byte, and a
// signed trap (-1 when none).
type TraceEntry struct {
	PC     int
	Opcode byte
	Trap   int
}

// TraceGet copies out trace entry i, or the zero TraceEntry with Trap -1 if
// i is out of range.
func (h *Handle) TraceGet(i int) TraceEntry {
	trace := h.vm.State().Trace
	if i < 0 || i >= len(trace) {
		return TraceEntry{Trap: -1}
	}
	e := trace[i]
	trap := -1
	if e.HasTrap {
		trap = int(e.Trap)
	}
	return TraceEntry{PC: e.PC, Opcode: byte(e.Opcode), Trap: trap}
}

// SetRegister is the one permitted external mutation besides LoadFile/Step.
func (h *Handle) SetRegister(i int, value int64) {
	h.vm.SetRegister(i, value, vmcore.Int)
}
