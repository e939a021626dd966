package rng_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropforge/dropforge/internal/game/rng"
)

func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := rng.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
}

func TestCryptoSource_Intn_One(t *testing.T) {
	src := rng.NewCryptoSource()
	for i := 0; i < 100; i++ {
		assert.Equal(t, 0, src.Intn(1))
	}
}

func TestCryptoSource_Intn_PanicsOnZero(t *testing.T) {
	src := rng.NewCryptoSource()
	assert.Panics(t, func() { src.Intn(0) })
}

func TestCryptoSource_Intn_PanicsOnNegative(t *testing.T) {
	src := rng.NewCryptoSource()
	assert.Panics(t, func() { src.Intn(-5) })
}

func TestSeededSource_SameSeedSameStream(t *testing.T) {
	a := rng.NewSeededSource(42)
	b := rng.NewSeededSource(42)
	for i := 0; i < 500; i++ {
		require.Equal(t, a.Intn(1000), b.Intn(1000))
	}
}

func TestSeededSource_DifferentSeedsDiverge(t *testing.T) {
	a := rng.NewSeededSource(1)
	b := rng.NewSeededSource(2)
	same := true
	for i := 0; i < 50; i++ {
		if a.Intn(1 << 30) != b.Intn(1<<30) {
			same = false
			break
		}
	}
	assert.False(t, same, "distinct seeds should produce distinct streams")
}

func TestSeededSource_InRange(t *testing.T) {
	src := rng.NewSeededSource(7)
	for i := 0; i < 1000; i++ {
		v := src.Intn(13)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 13)
	}
}
