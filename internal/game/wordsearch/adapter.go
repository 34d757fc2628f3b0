// Package wordsearch implements the sopa-de-letras game: a shared letter
// grid with hidden Spanish words that players race to find. First player to
// claim a word scores it; the game ends when every word is found or the
// clock runs out.
package wordsearch

import (
	"time"

	"github.com/ludoteca/ludoteca/internal/game/session"
	"github.com/ludoteca/ludoteca/internal/protocol"
)

// Slug identifies the game in the adapter registry and the catalog.
const Slug = "sopa-de-letras"

const (
	phasePlaying  = "playing"
	phaseFinished = "finished"

	actionSelectWord = "select-word"
)

// Adapter implements session.Adapter and session.TickingAdapter for the
// word-search game. All state transitions are pure; the only randomness is
// grid generation at session start.
type Adapter struct {
	src Source
}

// New returns an Adapter seeded from the current time.
func New() *Adapter {
	return NewWithSource(NewMathSource(time.Now().UnixNano()))
}

// NewWithSource returns an Adapter using src for grid generation. Tests use
// a fixed seed to make the grid reproducible.
func NewWithSource(src Source) *Adapter {
	return &Adapter{src: src}
}

// DefaultConfig returns the baseline game configuration.
func (a *Adapter) DefaultConfig() map[string]any {
	return map[string]any{
		"gridSize":  12,
		"wordCount": 8,
		"timeLimit": 300,
		"category":  "general",
	}
}

// CreateInitialState builds the grid and the per-player score table.
//
// Postcondition: the returned state is in the playing phase with every
// player's score at zero.
func (a *Adapter) CreateInitialState(config map[string]any, playerIDs []string) session.State {
	gridSize := intConfig(config, "gridSize", 12)
	wordCount := intConfig(config, "wordCount", 8)
	timeLimit := intConfig(config, "timeLimit", 300)
	category, _ := config["category"].(string)

	grid, words := generateGrid(a.src, gridSize, wordCount, category)

	scores := make(map[string]int, len(playerIDs))
	for _, id := range playerIDs {
		scores[id] = 0
	}
	ids := make([]string, len(playerIDs))
	copy(ids, playerIDs)

	return session.State{
		"phase":         phasePlaying,
		"grid":          grid,
		"words":         words,
		"scores":        scores,
		"playerIds":     ids,
		"timeRemaining": float64(timeLimit),
		"gridSize":      gridSize,
	}
}

// ValidateAction accepts only in-bounds select-word actions while playing.
func (a *Adapter) ValidateAction(state session.State, action session.Action) bool {
	if phase, _ := state["phase"].(string); phase != phasePlaying {
		return false
	}
	if t, _ := action.Payload["type"].(string); t != actionSelectWord {
		return false
	}

	size, _ := state["gridSize"].(int)
	for _, key := range []string{"startRow", "startCol", "endRow", "endCol"} {
		v, ok := asInt(action.Payload[key])
		if !ok || v < 0 || v >= size {
			return false
		}
	}
	return true
}

// ApplyAction resolves a word selection. A miss leaves the state untouched;
// a hit marks the word found, credits the player, and closes the game when
// it was the last word.
func (a *Adapter) ApplyAction(state session.State, action session.Action) session.State {
	if t, _ := action.Payload["type"].(string); t != actionSelectWord {
		return state
	}

	grid := state["grid"].([][]string)
	words := state["words"].([]placedWord)

	startRow, _ := asInt(action.Payload["startRow"])
	startCol, _ := asInt(action.Payload["startCol"])
	endRow, _ := asInt(action.Payload["endRow"])
	endCol, _ := asInt(action.Payload["endCol"])

	idx := checkSelection(grid, words, startRow, startCol, endRow, endCol)
	if idx < 0 {
		return state
	}

	finder := action.PlayerID
	newWords := make([]placedWord, len(words))
	copy(newWords, words)
	newWords[idx].FoundBy = &finder

	oldScores := state["scores"].(map[string]int)
	newScores := make(map[string]int, len(oldScores))
	for id, s := range oldScores {
		newScores[id] = s
	}
	newScores[finder]++

	next := session.State{}
	for k, v := range state {
		next[k] = v
	}
	next["words"] = newWords
	next["scores"] = newScores

	if allFound(newWords) {
		next["phase"] = phaseFinished
	}
	return next
}

// IsFinished reports whether every word is found or time ran out.
func (a *Adapter) IsFinished(state session.State) bool {
	phase, _ := state["phase"].(string)
	remaining, _ := state["timeRemaining"].(float64)
	return phase == phaseFinished || remaining <= 0
}

// Tick counts the clock down by deltaMs and flips the phase to finished
// when it reaches zero. An already expired clock is left untouched.
func (a *Adapter) Tick(state session.State, deltaMs int64) session.State {
	remaining, _ := state["timeRemaining"].(float64)
	if remaining <= 0 {
		return state
	}

	newTime := remaining - float64(deltaMs)/1000
	if newTime < 0 {
		newTime = 0
	}

	next := session.State{}
	for k, v := range state {
		next[k] = v
	}
	next["timeRemaining"] = newTime
	if newTime <= 0 {
		next["phase"] = phaseFinished
	}
	return next
}

// CalculateResults ranks players by words found, recounted from the word
// list rather than the running score table.
func (a *Adapter) CalculateResults(state session.State) protocol.GameResults {
	words := state["words"].([]placedWord)
	playerIDs := state["playerIds"].([]string)

	scores := make(map[string]int, len(playerIDs))
	for _, id := range playerIDs {
		scores[id] = 0
	}
	for _, w := range words {
		if w.FoundBy != nil {
			scores[*w.FoundBy]++
		}
	}
	return session.RankByScore(playerIDs, scores)
}

func allFound(words []placedWord) bool {
	for _, w := range words {
		if w.FoundBy == nil {
			return false
		}
	}
	return true
}

// asInt normalizes the numeric types a JSON payload or a config map can
// carry for an integer field.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func intConfig(config map[string]any, key string, fallback int) int {
	if v, ok := asInt(config[key]); ok && v > 0 {
		return v
	}
	return fallback
}
