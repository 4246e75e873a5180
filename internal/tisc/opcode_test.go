package tisc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupCanonicalNames(t *testing.T) {
	op, ok := Lookup("LoadImm")
	assert.True(t, ok)
	assert.Equal(t, LoadImm, op)
}

func TestLookupNormalizesPunctuationAndCase(t *testing.T) {
	op, ok := Lookup("load_imm")
	assert.True(t, ok)
	assert.Equal(t, LoadImm, op)

	op, ok = Lookup("LOAD-IMM")
	assert.True(t, ok)
	assert.Equal(t, LoadImm, op)
}

func TestLookupAliases(t *testing.T) {
	cases := map[string]Opcode{
		"jmp": Jump,
		"jz":  JumpIfZero,
		"jnz": JumpIfNotZero,
		"jn":  JumpIfNegative,
		"jp":  JumpIfPositive,
		"lt":  Less,
		"le":  LessEqual,
		"gt":  Greater,
		"ge":  GreaterEqual,
		"eq":  Equal,
		"neq": NotEqual,
	}
	for alias, want := range cases {
		got, ok := Lookup(alias)
		assert.True(t, ok, alias)
		assert.Equal(t, want, got, alias)
	}
}

func TestLookupUnknownFails(t *testing.T) {
	_, ok := Lookup("nonexistent")
	assert.False(t, ok)
}

func TestOpcodeValidBoundary(t *testing.T) {
	assert.True(t, AxVerify.Valid())
	assert.False(t, opcodeCount.Valid())
}

func TestOpcodeStringRoundTrip(t *testing.T) {
	for name, op := range nameToOpcode {
		assert.Equal(t, name, op.String())
	}
}
