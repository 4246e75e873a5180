// Command t81vm is the CLI frontend for the TISC interpreter: load a
// program, run it to halt or to a trap, and report a trace and/or a
// snapshot per §6.5.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"t81vm/internal/format"
	"t81vm/internal/vmcore"
)

func canonicalPassthrough(in string) string {
	return strings.TrimSpace(in)
}

// handleCanonicalFlags intercepts the three "--canonical-* <literal>"
// invocations before normal flag parsing: they echo the canonicalized
// argument and exit 0, bypassing program loading entirely (mirrors the
// original CLI's early-return special case, which only fires for exactly
// two raw arguments).
func handleCanonicalFlags(args []string) bool {
	if len(args) != 2 {
		return false
	}
	switch args[0] {
	case "--canonical-bigint", "--canonical-fraction", "--canonical-tensor":
		fmt.Println(canonicalPassthrough(args[1]))
		return true
	default:
		return false
	}
}

func printTrace(s *vmcore.State) {
	for _, e := range s.Trace {
		fmt.Printf("%d:%d", e.PC, uint8(e.Opcode))
		if e.HasWrite {
			fmt.Printf(":write=r%d=%d:%s", e.WriteReg, e.WriteValue, e.WriteTag)
		}
		if e.HasTrap {
			fmt.Printf(":trap=%s", e.Trap)
		}
		fmt.Println()
	}
}

func printTrapPayload(p *vmcore.TrapPayload) {
	if p == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "TRAP_PAYLOAD trap=%s pc=%d opcode=%d a=%d b=%d c=%d segment=%s detail=\"%s\"\n",
		p.Trap, p.PC, uint64(p.Opcode), p.A, p.B, p.C, p.Segment, vmcore.EscapeDetail(p.Detail))
}

// runDebugLoop is the interactive single-step debugger: "n"/"next" executes
// one instruction, "r"/"run" free-runs until a breakpoint or halt/trap,
// "b <pc>"/"break <pc>" toggles a breakpoint on that program counter. Modeled
// on the teacher's RunProgramDebugMode, with stdin line editing via
// github.com/chzyer/readline instead of a bare bufio.Reader.
func runDebugLoop(vm *vmcore.Interpreter, maxSteps int) vmcore.Trap {
	rl, err := readline.New("-> ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "t81vm: debug mode unavailable:", err)
		return vm.RunToHalt(maxSteps)
	}
	defer rl.Close()

	fmt.Println("Commands:\n\tn or next: execute next instruction\n\tr or run: run to breakpoint/halt\n\tb or break <pc>: toggle breakpoint at pc")

	breakpoints := make(map[int]struct{})
	free := false
	steps := 0

	for {
		state := vm.State()
		if state.Halted {
			fmt.Println(state.Summary())
			return vmcore.None
		}

		if free {
			if _, hit := breakpoints[state.PC]; hit {
				fmt.Println("breakpoint")
				fmt.Println(state.Summary())
				free = false
				continue
			}
			if steps >= maxSteps {
				return vmcore.TrapInstruction
			}
			steps++
			if tr := vm.Step(); tr != vmcore.None {
				return tr
			}
			continue
		}

		line, err := rl.Readline()
		if err != nil {
			return vmcore.None
		}
		line = strings.ToLower(strings.TrimSpace(line))

		switch {
		case line == "n" || line == "next":
			if steps >= maxSteps {
				return vmcore.TrapInstruction
			}
			steps++
			tr := vm.Step()
			fmt.Println(vm.State().Summary())
			if tr != vmcore.None {
				return tr
			}
		case line == "r" || line == "run":
			free = true
		case strings.HasPrefix(line, "b") || strings.HasPrefix(line, "break"):
			fields := strings.Fields(line)
			if len(fields) < 2 {
				fmt.Println("usage: b <pc>")
				continue
			}
			pc, perr := strconv.Atoi(fields[len(fields)-1])
			if perr != nil {
				fmt.Println("bad pc:", perr)
				continue
			}
			if _, ok := breakpoints[pc]; ok {
				delete(breakpoints, pc)
			} else {
				breakpoints[pc] = struct{}{}
			}
		default:
			fmt.Println("unknown command")
		}
	}
}

func run(c *cli.Context) error {
	programPath := c.Args().First()
	if programPath == "" {
		cli.ShowAppHelp(c)
		os.Exit(2)
		return nil
	}

	maxSteps := c.Int("max-steps")
	if maxSteps <= 0 {
		fmt.Fprintln(os.Stderr, "t81vm: --max-steps must be positive")
		os.Exit(2)
		return nil
	}

	mode := c.String("mode")
	if mode != "interpreter" && mode != "accelerated-preview" {
		fmt.Fprintln(os.Stderr, "t81vm: --mode must be interpreter or accelerated-preview")
		os.Exit(2)
		return nil
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	program, err := format.LoadFile(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAULT ParseError: %v\n", err)
		os.Exit(1)
		return nil
	}

	if mode == "accelerated-preview" {
		fmt.Fprintln(os.Stderr, "MODE accelerated-preview (preview): using interpreter backend")
	}

	vm := vmcore.NewInterpreter()
	vm.LoadProgram(program)

	var trap vmcore.Trap
	if c.Bool("debug") {
		trap = runDebugLoop(vm, maxSteps)
	} else {
		trap = vm.RunToHalt(maxSteps)
	}

	emitTrace := c.Bool("trace")
	emitSnapshot := c.Bool("snapshot")
	if !emitTrace && !emitSnapshot {
		emitTrace = true
	}

	state := vm.State()
	if emitTrace {
		printTrace(state)
	}
	if emitSnapshot {
		fmt.Println(state.Summary())
	}

	if trap != vmcore.None {
		logger.Warn("program did not halt cleanly", zap.Stringer("trap", trap))
		fmt.Fprintf(os.Stderr, "FAULT %s\n", trap)
		printTrapPayload(state.LastTrapPayload)
		os.Exit(1)
		return nil
	}

	return nil
}

func main() {
	if handleCanonicalFlags(os.Args[1:]) {
		return
	}

	app := &cli.App{
		Name:  "t81vm",
		Usage: "run a TISC program to halt or to a trap",
		UsageText: "t81vm [--trace] [--snapshot] [--max-steps N] [--mode interpreter|accelerated-preview] " +
			"<program.t81vm|program.tisc.json>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "trace", Usage: "print a trace line per executed step"},
			&cli.BoolFlag{Name: "snapshot", Usage: "print the final state snapshot"},
			&cli.IntFlag{Name: "max-steps", Value: 100000, Usage: "watchdog step budget"},
			&cli.StringFlag{Name: "mode", Value: "interpreter", Usage: "interpreter|accelerated-preview"},
			&cli.BoolFlag{Name: "debug", Usage: "interactive single-step debugger"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
