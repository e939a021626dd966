package opening_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropforge/dropforge/internal/game/opening"
)

func TestBracketFor_Boundaries(t *testing.T) {
	assert.Equal(t, "entry", opening.BracketFor(1))
	assert.Equal(t, "entry", opening.BracketFor(499))
	assert.Equal(t, "mid", opening.BracketFor(500))
	assert.Equal(t, "mid", opening.BracketFor(1999))
	assert.Equal(t, "high", opening.BracketFor(2000))
	assert.Equal(t, "high", opening.BracketFor(9999))
	assert.Equal(t, "premium", opening.BracketFor(10000))
	assert.Equal(t, "premium", opening.BracketFor(250000))
}

func TestMemoryRevenueBook_StartsEmpty(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	net, err := book.Net(context.Background(), "entry")
	require.NoError(t, err)
	assert.Zero(t, net)
}

func TestMemoryRevenueBook_AddAccumulates(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	ctx := context.Background()

	require.NoError(t, book.Add(ctx, "mid", 900))
	require.NoError(t, book.Add(ctx, "mid", -350))
	require.NoError(t, book.Add(ctx, "high", 100))

	net, err := book.Net(ctx, "mid")
	require.NoError(t, err)
	assert.Equal(t, int64(550), net)

	net, err = book.Net(ctx, "high")
	require.NoError(t, err)
	assert.Equal(t, int64(100), net)
}

func TestMemoryRevenueBook_NetMayGoNegative(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	ctx := context.Background()

	require.NoError(t, book.Add(ctx, "entry", -5000))
	net, err := book.Net(ctx, "entry")
	require.NoError(t, err)
	assert.Equal(t, int64(-5000), net)
}
