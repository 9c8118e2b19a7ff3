// Package referral tracks the one-time referrer assignment graph and the
// 3-level ancestor lookup the fee waterfall pays out against.
package referral

import (
	"errors"
	"sync"
	"sync/atomic"
)

// MaxDepth is the deepest referral level that earns a fee bucket. Cycles
// longer than this are structurally unreachable by the payout walk, so
// acyclicity only has to be enforced up to this depth.
const MaxDepth = 3

var (
	// ErrReferrerAlreadySet is returned when a user already has a referrer.
	// Assignment is permanent; no update path exists.
	ErrReferrerAlreadySet = errors.New("referrer already set")

	// ErrSelfReferral is returned when a user tries to refer themselves.
	ErrSelfReferral = errors.New("self referral")

	// ErrCircularReferral is returned when the assignment would place the
	// user inside their own ancestor chain.
	ErrCircularReferral = errors.New("circular referral")
)

// Chain holds up to three ancestor IDs for a user. Empty strings mean the
// level does not exist; its fee bucket collapses into the protocol residual.
type Chain struct {
	L1 string
	L2 string
	L3 string
}

// Graph is an in-memory parent-pointer map. Depth is capped at MaxDepth so
// no recursive structure is needed.
type Graph struct {
	mu     sync.RWMutex
	parent map[string]string

	assignments atomic.Int64
	rejections  atomic.Int64
}

// NewGraph creates an empty referral graph.
func NewGraph() *Graph {
	return &Graph{parent: make(map[string]string)}
}

// SetReferrer permanently assigns referrer as user's parent.
func (g *Graph) SetReferrer(user, referrer string) error {
	if user == referrer {
		g.rejections.Add(1)
		return ErrSelfReferral
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.parent[user]; ok {
		g.rejections.Add(1)
		return ErrReferrerAlreadySet
	}

	// Walk the referrer's ancestor chain; if user appears within MaxDepth
	// hops, the assignment would close a payable cycle.
	cur := referrer
	for i := 0; i < MaxDepth; i++ {
		next, ok := g.parent[cur]
		if !ok {
			break
		}
		if next == user {
			g.rejections.Add(1)
			return ErrCircularReferral
		}
		cur = next
	}

	g.parent[user] = referrer
	g.assignments.Add(1)
	return nil
}

// ReferrerOf returns the user's direct referrer, if any.
func (g *Graph) ReferrerOf(user string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.parent[user]
	return r, ok
}

// ChainOf resolves the user's ancestor chain up to MaxDepth levels.
func (g *Graph) ChainOf(user string) Chain {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var c Chain
	if l1, ok := g.parent[user]; ok {
		c.L1 = l1
		if l2, ok := g.parent[l1]; ok {
			c.L2 = l2
			if l3, ok := g.parent[l2]; ok {
				c.L3 = l3
			}
		}
	}
	return c
}

// Size returns the number of users with an assigned referrer.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.parent)
}

// Stats returns lifetime assignment and rejection counts.
func (g *Graph) Stats() (assignments, rejections int64) {
	return g.assignments.Load(), g.rejections.Load()
}
