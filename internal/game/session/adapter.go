// Package session binds rooms to pluggable game adapters and drives the
// authoritative game simulation.
package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ludoteca/ludoteca/internal/protocol"
)

// State is a game's authoritative state. The orchestration core never
// inspects its contents; it only stores, forwards, and round-trips it.
type State = map[string]any

// Action is a player-issued game action: the opaque client payload tagged
// with the acting player's id.
type Action struct {
	PlayerID string
	Payload  map[string]any
}

// Adapter is the contract every pluggable game implements. ValidateAction
// and ApplyAction must be pure: no side effects, and identical inputs yield
// identical outputs. Randomness belongs in CreateInitialState only.
type Adapter interface {
	// CreateInitialState builds the starting state for the given config and
	// player roster.
	CreateInitialState(config map[string]any, playerIDs []string) State
	// ValidateAction reports whether the action is legal in the given state.
	ValidateAction(state State, action Action) bool
	// ApplyAction returns the successor state. Called only after
	// ValidateAction accepted the action.
	ApplyAction(state State, action Action) State
	// IsFinished reports whether the game has reached a terminal state.
	IsFinished(state State) bool
	// CalculateResults computes the final rankings for a terminal state.
	CalculateResults(state State) protocol.GameResults
	// DefaultConfig returns the config used when the room sets none.
	DefaultConfig() map[string]any
}

// TickingAdapter is implemented by time-driven games. The session calls
// Tick at a fixed period with the elapsed wall-clock milliseconds.
type TickingAdapter interface {
	Adapter
	Tick(state State, deltaMs int64) State
}

// RankByScore builds rankings from per-player scores: descending score,
// 1-based rank, ties broken by the given encounter order. Shared helper for
// adapters.
func RankByScore(playerIDs []string, scores map[string]int) protocol.GameResults {
	rankings := make([]protocol.PlayerResult, 0, len(playerIDs))
	for _, id := range playerIDs {
		rankings = append(rankings, protocol.PlayerResult{
			PlayerID: id,
			Score:    scores[id],
		})
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].Score > rankings[j].Score
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return protocol.GameResults{Rankings: rankings}
}

// Registry maps game slugs to adapter factories. Registration happens at
// process start; lookups are an explicit miss for unknown slugs, never a
// crash.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Adapter)}
}

// Register binds a slug to an adapter factory.
//
// Precondition: slug must be non-empty and not already registered.
func (r *Registry) Register(slug string, factory func() Adapter) error {
	if slug == "" {
		return fmt.Errorf("adapter slug must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[slug]; exists {
		return fmt.Errorf("adapter %q already registered", slug)
	}
	r.factories[slug] = factory
	return nil
}

// Resolve returns a fresh adapter instance for the slug, or false on an
// unknown slug.
func (r *Registry) Resolve(slug string) (Adapter, bool) {
	r.mu.RLock()
	factory, ok := r.factories[slug]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Slugs returns the registered slugs in sorted order.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.factories))
	for slug := range r.factories {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
