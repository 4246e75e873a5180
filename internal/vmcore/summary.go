package vmcore

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"strings"
)

// hashWriter accumulates the exact byte decomposition spec §4.4 names, in
// its normative order, into a running FNV-1a-64 digest.
type hashWriter struct {
	h hash.Hash64
}

func newHashWriter() hashWriter {
	return hashWriter{h: fnv.New64a()}
}

func (w hashWriter) bool(b bool) {
	if b {
		w.h.Write([]byte{1})
	} else {
		w.h.Write([]byte{0})
	}
}

func (w hashWriter) u8(v uint8) {
	w.h.Write([]byte{v})
}

func (w hashWriter) i64(v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	w.h.Write(buf[:])
}

func (w hashWriter) u64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.h.Write(buf[:])
}

func (w hashWriter) str(s string) {
	w.u64(uint64(len(s)))
	w.h.Write([]byte(s))
}

// StateHash computes the FNV-1a digest of the exact field order spec §4.4
// mandates: pc, halted, gc_cycles, every register, every memory cell, trace
// length, every trace entry, trap payload, policy.
func (s *State) StateHash() uint64 {
	w := newHashWriter()

	w.i64(int64(s.PC))
	w.bool(s.Halted)
	w.u64(s.GCCycles)

	for _, r := range s.Registers {
		w.i64(r)
	}
	for _, m := range s.Memory {
		w.i64(m)
	}

	w.u64(uint64(len(s.Trace)))
	for _, t := range s.Trace {
		w.i64(int64(t.PC))
		w.u8(uint8(t.Opcode))
		w.bool(t.HasWrite)
		if t.HasWrite {
			w.i64(int64(t.WriteReg))
			w.i64(t.WriteValue)
			w.u8(uint8(t.WriteTag))
		}
		w.bool(t.HasTrap)
		if t.HasTrap {
			w.i64(int64(t.Trap))
		}
	}

	w.bool(s.LastTrapPayload != nil)
	if s.LastTrapPayload != nil {
		p := s.LastTrapPayload
		w.i64(int64(p.Trap))
		w.i64(int64(p.PC))
		w.u8(uint8(p.Opcode))
		w.i64(p.A)
		w.i64(p.B)
		w.i64(p.C)
		w.u8(uint8(p.Segment))
		w.str(p.Detail)
	}

	w.bool(s.Policy != nil)
	if s.Policy != nil {
		w.i64(int64(s.Policy.Tier))
	}

	return w.h.Sum64()
}

// EscapeDetail applies the §4.4 detail-string escape ('\' and '"' are
// backslash-escaped, newline becomes the two-character "\n") so any caller
// rendering a TRAP_PAYLOAD line — Summary here, the CLI's stderr fault
// line — produces byte-identical escaping.
func EscapeDetail(detail string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return r.Replace(detail)
}

// Summary renders snapshot_summary: SNAPSHOT, REGISTERS, an optional
// TRAP_PAYLOAD line, then STATE_HASH, in that normative order (§4.4).
func (s *State) Summary() string {
	var b strings.Builder

	halted := 0
	if s.Halted {
		halted = 1
	}
	fmt.Fprintf(&b, "SNAPSHOT pc=%d halted=%d gc_cycles=%d", s.PC, halted, s.GCCycles)
	if s.Policy != nil {
		fmt.Fprintf(&b, " policy_tier=%d", s.Policy.Tier)
	}
	b.WriteByte('\n')

	b.WriteString("REGISTERS")
	for i, r := range s.Registers {
		fmt.Fprintf(&b, " r%d=%d", i, r)
	}
	b.WriteByte('\n')

	if s.LastTrapPayload != nil {
		p := s.LastTrapPayload
		fmt.Fprintf(&b, "TRAP_PAYLOAD trap=%s pc=%d opcode=%d a=%d b=%d c=%d segment=%s detail=\"%s\"\n",
			p.Trap, p.PC, uint64(p.Opcode), p.A, p.B, p.C, p.Segment, EscapeDetail(p.Detail))
	}

	fmt.Fprintf(&b, "STATE_HASH 0x%016x", s.StateHash())

	return b.String()
}
