package wordsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ludoteca/ludoteca/internal/game/session"
)

func newState(t *testing.T, seed int64, players ...string) (*Adapter, session.State) {
	t.Helper()
	adapter := NewWithSource(NewMathSource(seed))
	state := adapter.CreateInitialState(adapter.DefaultConfig(), players)
	return adapter, state
}

// wordEnd computes the last cell of a placed word.
func wordEnd(w placedWord) (int, int) {
	dr, dc := directionDelta(w.Direction)
	steps := len([]rune(w.Word)) - 1
	return w.StartRow + dr*steps, w.StartCol + dc*steps
}

func selectPayload(startRow, startCol, endRow, endCol int) map[string]any {
	// Mirrors what a decoded JSON frame carries: float64 numbers.
	return map[string]any{
		"type":     actionSelectWord,
		"startRow": float64(startRow),
		"startCol": float64(startCol),
		"endRow":   float64(endRow),
		"endCol":   float64(endCol),
	}
}

func TestGenerateGridPlacesReadableWords(t *testing.T) {
	src := NewMathSource(42)
	grid, words := generateGrid(src, 12, 8, "general")

	require.Len(t, grid, 12)
	for _, row := range grid {
		require.Len(t, row, 12)
		for _, cell := range row {
			assert.Len(t, []rune(cell), 1)
			assert.Contains(t, string(alphabet), cell)
		}
	}

	require.NotEmpty(t, words)
	assert.LessOrEqual(t, len(words), 8)
	for _, w := range words {
		dr, dc := directionDelta(w.Direction)
		var got []rune
		for i := range []rune(w.Word) {
			got = append(got, []rune(grid[w.StartRow+dr*i][w.StartCol+dc*i])...)
		}
		assert.Equal(t, w.Word, string(got))
		assert.Nil(t, w.FoundBy)
	}
}

func TestGenerateGridDeterministicPerSeed(t *testing.T) {
	gridA, wordsA := generateGrid(NewMathSource(7), 12, 8, "general")
	gridB, wordsB := generateGrid(NewMathSource(7), 12, 8, "general")
	assert.Equal(t, gridA, gridB)
	assert.Equal(t, wordsA, wordsB)
}

func TestGenerateGridUnknownCategoryFallsBack(t *testing.T) {
	_, words := generateGrid(NewMathSource(3), 12, 5, "no-such-category")
	assert.NotEmpty(t, words)
}

func TestCreateInitialState(t *testing.T) {
	_, state := newState(t, 1, "p1", "p2")

	assert.Equal(t, phasePlaying, state["phase"])
	assert.Equal(t, 12, state["gridSize"])
	assert.Equal(t, float64(300), state["timeRemaining"])
	assert.Equal(t, map[string]int{"p1": 0, "p2": 0}, state["scores"])
	assert.Equal(t, []string{"p1", "p2"}, state["playerIds"])
}

func TestConfigFallbacks(t *testing.T) {
	adapter := NewWithSource(NewMathSource(1))
	// Values as a jsonb round trip delivers them, plus junk to ignore.
	state := adapter.CreateInitialState(map[string]any{
		"gridSize":  float64(10),
		"wordCount": float64(4),
		"timeLimit": "soon",
		"category":  "general",
	}, []string{"p1"})

	assert.Equal(t, 10, state["gridSize"])
	assert.Len(t, state["grid"].([][]string), 10)
	assert.LessOrEqual(t, len(state["words"].([]placedWord)), 4)
	assert.Equal(t, float64(300), state["timeRemaining"])
}

func TestValidateAction(t *testing.T) {
	adapter, state := newState(t, 1, "p1", "p2")

	valid := session.Action{PlayerID: "p1", Payload: selectPayload(0, 0, 0, 3)}
	assert.True(t, adapter.ValidateAction(state, valid))

	wrongType := session.Action{PlayerID: "p1", Payload: map[string]any{"type": "shout"}}
	assert.False(t, adapter.ValidateAction(state, wrongType))

	outOfBounds := session.Action{PlayerID: "p1", Payload: selectPayload(0, 0, 12, 0)}
	assert.False(t, adapter.ValidateAction(state, outOfBounds))

	negative := session.Action{PlayerID: "p1", Payload: selectPayload(-1, 0, 0, 0)}
	assert.False(t, adapter.ValidateAction(state, negative))

	missingField := session.Action{PlayerID: "p1", Payload: map[string]any{
		"type": actionSelectWord, "startRow": float64(0),
	}}
	assert.False(t, adapter.ValidateAction(state, missingField))

	finished := session.State{}
	for k, v := range state {
		finished[k] = v
	}
	finished["phase"] = phaseFinished
	assert.False(t, adapter.ValidateAction(finished, valid))
}

func TestApplyActionClaimsWord(t *testing.T) {
	adapter, state := newState(t, 1, "p1", "p2")
	words := state["words"].([]placedWord)
	require.NotEmpty(t, words)
	target := words[0]
	endRow, endCol := wordEnd(target)

	action := session.Action{
		PlayerID: "p2",
		Payload:  selectPayload(target.StartRow, target.StartCol, endRow, endCol),
	}
	require.True(t, adapter.ValidateAction(state, action))
	next := adapter.ApplyAction(state, action)

	newWords := next["words"].([]placedWord)
	require.NotNil(t, newWords[0].FoundBy)
	assert.Equal(t, "p2", *newWords[0].FoundBy)
	assert.Equal(t, 1, next["scores"].(map[string]int)["p2"])

	// Prior state is untouched.
	assert.Nil(t, state["words"].([]placedWord)[0].FoundBy)
	assert.Equal(t, 0, state["scores"].(map[string]int)["p2"])
}

func TestApplyActionReverseSelection(t *testing.T) {
	adapter, state := newState(t, 1, "p1")
	words := state["words"].([]placedWord)
	require.NotEmpty(t, words)
	target := words[0]
	endRow, endCol := wordEnd(target)

	// Drag from the last letter back to the first.
	action := session.Action{
		PlayerID: "p1",
		Payload:  selectPayload(endRow, endCol, target.StartRow, target.StartCol),
	}
	next := adapter.ApplyAction(state, action)

	newWords := next["words"].([]placedWord)
	require.NotNil(t, newWords[0].FoundBy)
	assert.Equal(t, "p1", *newWords[0].FoundBy)
}

func TestApplyActionMissLeavesStateUnchanged(t *testing.T) {
	adapter, state := newState(t, 1, "p1")

	// A bent selection is never a word.
	action := session.Action{PlayerID: "p1", Payload: selectPayload(0, 0, 1, 3)}
	next := adapter.ApplyAction(state, action)
	assert.Equal(t, state, next)
}

func TestApplyActionAlreadyFoundWordIgnored(t *testing.T) {
	adapter, state := newState(t, 1, "p1", "p2")
	words := state["words"].([]placedWord)
	require.NotEmpty(t, words)
	target := words[0]
	endRow, endCol := wordEnd(target)
	payload := selectPayload(target.StartRow, target.StartCol, endRow, endCol)

	next := adapter.ApplyAction(state, session.Action{PlayerID: "p1", Payload: payload})
	again := adapter.ApplyAction(next, session.Action{PlayerID: "p2", Payload: payload})

	assert.Equal(t, "p1", *again["words"].([]placedWord)[0].FoundBy)
	assert.Equal(t, 0, again["scores"].(map[string]int)["p2"])
}

func TestGameFinishesWhenAllWordsFound(t *testing.T) {
	adapter, state := newState(t, 1, "p1")

	for range state["words"].([]placedWord) {
		// Re-read the remaining words each round; indexes shift as found.
		var target placedWord
		found := false
		for _, w := range state["words"].([]placedWord) {
			if w.FoundBy == nil {
				target = w
				found = true
				break
			}
		}
		require.True(t, found)
		endRow, endCol := wordEnd(target)
		state = adapter.ApplyAction(state, session.Action{
			PlayerID: "p1",
			Payload:  selectPayload(target.StartRow, target.StartCol, endRow, endCol),
		})
	}

	assert.Equal(t, phaseFinished, state["phase"])
	assert.True(t, adapter.IsFinished(state))
}

func TestTickCountsDownAndFinishes(t *testing.T) {
	adapter, state := newState(t, 1, "p1")

	ticked := adapter.Tick(state, 1000)
	assert.Equal(t, float64(299), ticked["timeRemaining"])
	assert.Equal(t, phasePlaying, ticked["phase"])
	assert.False(t, adapter.IsFinished(ticked))

	expired := adapter.Tick(ticked, 299_500)
	assert.Equal(t, float64(0), expired["timeRemaining"])
	assert.Equal(t, phaseFinished, expired["phase"])
	assert.True(t, adapter.IsFinished(expired))

	// Ticking past zero is a no-op.
	assert.Equal(t, expired, adapter.Tick(expired, 1000))
}

func TestCalculateResultsCountsFoundWords(t *testing.T) {
	adapter, state := newState(t, 1, "p1", "p2")
	words := state["words"].([]placedWord)
	require.GreaterOrEqual(t, len(words), 2)

	for i, finder := range []string{"p2", "p2"} {
		target := state["words"].([]placedWord)[i]
		endRow, endCol := wordEnd(target)
		state = adapter.ApplyAction(state, session.Action{
			PlayerID: finder,
			Payload:  selectPayload(target.StartRow, target.StartCol, endRow, endCol),
		})
	}

	results := adapter.CalculateResults(state)
	require.Len(t, results.Rankings, 2)
	assert.Equal(t, "p2", results.Rankings[0].PlayerID)
	assert.Equal(t, 2, results.Rankings[0].Score)
	assert.Equal(t, 1, results.Rankings[0].Rank)
	assert.Equal(t, "p1", results.Rankings[1].PlayerID)
	assert.Equal(t, 0, results.Rankings[1].Score)
	assert.Equal(t, 2, results.Rankings[1].Rank)
}

// TestGridProperties verifies across random seeds and sizes that every
// placed word stays readable and the grid is always fully lettered.
func TestGridProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		gridSize := rapid.IntRange(6, 16).Draw(t, "gridSize")
		wordCount := rapid.IntRange(1, 10).Draw(t, "wordCount")

		grid, words := generateGrid(NewMathSource(seed), gridSize, wordCount, "general")

		if len(words) > wordCount {
			t.Fatalf("placed %d words, wanted at most %d", len(words), wordCount)
		}
		for _, row := range grid {
			for _, cell := range row {
				if cell == "" {
					t.Fatal("grid left an empty cell")
				}
			}
		}
		for _, w := range words {
			dr, dc := directionDelta(w.Direction)
			var got []rune
			for i := range []rune(w.Word) {
				got = append(got, []rune(grid[w.StartRow+dr*i][w.StartCol+dc*i])...)
			}
			if string(got) != w.Word {
				t.Fatalf("word %q not readable at (%d,%d) %s", w.Word, w.StartRow, w.StartCol, w.Direction)
			}
		}
	})
}
