package hashing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSHA256PrefixVectors(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"", 0xE3B0C44298FC1C14},
		{"blargh", 0x0AC33512D18E20D5},
		{"🗻", 0x1DDBF4EA8DAE91E5},
	}
	for _, c := range cases {
		got := SHA256Prefix(c.in)
		assert.Equal(t, c.want, got, "SHA256Prefix(%q)", c.in)
	}
}

func TestDJB2(t *testing.T) {
	assert.Equal(t, uint32(0), DJB2(""))
	// fits in 32 bits trivially by type; assert determinism instead.
	assert.Equal(t, DJB2("hello"), DJB2("hello"))
	assert.NotEqual(t, DJB2("hello"), DJB2("world"))
}

func TestBucketRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		b := Bucket("salt", fmt.Sprintf("user-%d", i))
		assert.Less(t, b, uint64(BucketingDenominator))
	}
}

func TestBucketDeterministic(t *testing.T) {
	a := Bucket("mysalt", "user-1")
	b := Bucket("mysalt", "user-1")
	assert.Equal(t, a, b)
}

func TestHashKeyAlgorithms(t *testing.T) {
	assert.Equal(t, "a_gate", HashKey(AlgorithmNone, "a_gate"))
	assert.Equal(t, fmt.Sprint(DJB2("a_gate")), HashKey(AlgorithmDJB2, "a_gate"))
	assert.NotEqual(t, "a_gate", HashKey(AlgorithmSHA256, "a_gate"))
}

func TestInternerReturnsSameStringAndDedupes(t *testing.T) {
	in := NewInterner()
	a := in.Intern("gate_name")
	b := in.Intern("gate_name")
	assert.Equal(t, a, b)
	assert.Equal(t, 1, in.Len())

	in.Intern("other")
	assert.Equal(t, 2, in.Len())
}

func TestCacheKeyDistinguishesPartBoundaries(t *testing.T) {
	a := CacheKey("x", "y")
	b := CacheKey("xy")
	assert.NotEqual(t, a, b, "separator must prevent concatenation collisions")
}
