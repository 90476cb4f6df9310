package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHex(t *testing.T) {
	assert.Equal(t, "0000000000000000", Hex(0))
	assert.Equal(t, "00000000000000ff", Hex(255))
	assert.Len(t, Hex(U64("select 1")), 16)
}

func TestFingerprintQuery(t *testing.T) {
	a := FingerprintQuery("postgres", "SELECT $1")
	assert.Equal(t, a, FingerprintQuery("postgres", "SELECT $1"))
	assert.NotEqual(t, a, FingerprintQuery("postgres", "SELECT $1 "))
	assert.NotEqual(t, a, FingerprintQuery("duckdb", "SELECT $1"))
}

func TestMix64Order(t *testing.T) {
	a, b := U64("postgres"), U64("SELECT 1")
	assert.NotEqual(t, Mix64(a, b), Mix64(b, a))
	assert.Equal(t, Mix64(a, b), Mix64(a, b))
}
