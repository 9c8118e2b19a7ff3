package referral

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetReferrerOnce(t *testing.T) {
	g := NewGraph()

	require.NoError(t, g.SetReferrer("alice", "bob"))

	r, ok := g.ReferrerOf("alice")
	require.True(t, ok)
	assert.Equal(t, "bob", r)

	// Assignment is permanent, even to the same referrer.
	assert.ErrorIs(t, g.SetReferrer("alice", "charlie"), ErrReferrerAlreadySet)
	assert.ErrorIs(t, g.SetReferrer("alice", "bob"), ErrReferrerAlreadySet)
}

func TestSetReferrerSelf(t *testing.T) {
	g := NewGraph()
	assert.ErrorIs(t, g.SetReferrer("alice", "alice"), ErrSelfReferral)
}

func TestSetReferrerCycle(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.SetReferrer("bob", "charlie"))
	require.NoError(t, g.SetReferrer("alice", "bob"))

	// charlie -> alice would close alice -> bob -> charlie -> alice.
	assert.ErrorIs(t, g.SetReferrer("charlie", "alice"), ErrCircularReferral)

	// Direct two-node cycle.
	assert.ErrorIs(t, g.SetReferrer("charlie", "bob"), ErrCircularReferral)
}

func TestChainOf(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.SetReferrer("charlie", "dave"))
	require.NoError(t, g.SetReferrer("bob", "charlie"))
	require.NoError(t, g.SetReferrer("alice", "bob"))

	c := g.ChainOf("alice")
	assert.Equal(t, Chain{L1: "bob", L2: "charlie", L3: "dave"}, c)

	// The chain truncates where ancestors stop existing.
	assert.Equal(t, Chain{L1: "charlie", L2: "dave"}, g.ChainOf("bob"))
	assert.Equal(t, Chain{L1: "dave"}, g.ChainOf("charlie"))
	assert.Equal(t, Chain{}, g.ChainOf("dave"))
	assert.Equal(t, Chain{}, g.ChainOf("nobody"))
}

func TestChainOfCapsAtThreeLevels(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.SetReferrer("u1", "u2"))
	require.NoError(t, g.SetReferrer("u2", "u3"))
	require.NoError(t, g.SetReferrer("u3", "u4"))
	require.NoError(t, g.SetReferrer("u4", "u5"))

	c := g.ChainOf("u1")
	assert.Equal(t, Chain{L1: "u2", L2: "u3", L3: "u4"}, c)
}

func TestStats(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.SetReferrer("alice", "bob"))
	_ = g.SetReferrer("alice", "bob")
	_ = g.SetReferrer("x", "x")

	assignments, rejections := g.Stats()
	assert.Equal(t, int64(1), assignments)
	assert.Equal(t, int64(2), rejections)
	assert.Equal(t, 1, g.Size())
}

func TestConcurrentAssignment(t *testing.T) {
	g := NewGraph()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			_ = g.SetReferrer(user, "root")
			// Second attempt from a racing path must be rejected.
			assert.ErrorIs(t, g.SetReferrer(user, "other"), ErrReferrerAlreadySet)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, g.Size())
	assignments, _ := g.Stats()
	assert.Equal(t, int64(32), assignments)
}
