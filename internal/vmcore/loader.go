package vmcore

import (
	"regexp"
	"strconv"

	"t81vm/internal/tisc"
)

// tierPattern matches the literal "(tier N)" substring spec §3 uses to
// encode axion policy tier in free-form policy text.
var tierPattern = regexp.MustCompile(`\(tier\s+([0-9]+)\)`)

func parsePolicy(text string) *Policy {
	m := tierPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	tier, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &Policy{Tier: tier}
}

// LoadedProgram is the loader's output: the initial state plus any
// validator failure deferred to the first Step call (the "preload trap"
// channel from spec §4.3/§9, keeping Load itself infallible).
type LoadedProgram struct {
	Program     tisc.Program
	Initial     State
	PreloadTrap Trap
	HasPreload  bool
}

// Load builds a fresh initial State for program: allocates segmented
// memory, sets up stack/heap cursors, parses the axion policy tier, and
// runs the validator, recording its outcome as a preload trap rather than
// failing outright.
func Load(program tisc.Program) LoadedProgram {
	layout := newLayout(len(program.Insns))

	state := State{
		Layout:  layout,
		Memory:  make([]int64, layout.TotalSize()),
		SP:      layout.Stack.Limit,
		HeapPtr: layout.Heap.Start,
		Policy:  parsePolicy(program.AxionPolicyText),
	}

	trap, has := Validate(program)

	return LoadedProgram{
		Program:     program,
		Initial:     state,
		PreloadTrap: trap,
		HasPreload:  has,
	}
}
