package wordsearch

import "math/rand"

// Source is the randomness provider for grid generation.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	Intn(n int) int
}

// mathSource implements Source using math/rand with its own generator, so
// concurrent grid builds do not contend on the global source.
type mathSource struct {
	rng *rand.Rand
}

// NewMathSource returns a Source backed by math/rand seeded with seed.
func NewMathSource(seed int64) Source {
	return &mathSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *mathSource) Intn(n int) int {
	return s.rng.Intn(n)
}

// placedWord records where a word sits in the grid and who found it.
// FoundBy is nil until a player claims the word.
type placedWord struct {
	Word      string  `json:"word"`
	StartRow  int     `json:"startRow"`
	StartCol  int     `json:"startCol"`
	Direction string  `json:"direction"`
	FoundBy   *string `json:"foundBy"`
}

// maxPlacementAttempts bounds the total direction tries across all words so
// a pathological config cannot spin forever.
const maxPlacementAttempts = 500

func shuffle[T any](src Source, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// canPlaceWord reports whether word fits at (row, col) heading in dir,
// allowing overlap only on matching letters.
func canPlaceWord(grid [][]string, word []rune, row, col int, dir string) bool {
	size := len(grid)
	dr, dc := directionDelta(dir)

	for i, letter := range word {
		r := row + dr*i
		c := col + dc*i
		if r < 0 || r >= size || c < 0 || c >= size {
			return false
		}
		if grid[r][c] != "" && grid[r][c] != string(letter) {
			return false
		}
	}
	return true
}

func placeWord(grid [][]string, word []rune, row, col int, dir string) {
	dr, dc := directionDelta(dir)
	for i, letter := range word {
		grid[row+dr*i][col+dc*i] = string(letter)
	}
}

// generateGrid builds a filled letter grid with up to wordCount words from
// the category's list placed in random positions and directions.
//
// Postcondition: every cell holds exactly one letter; every returned
// placedWord is readable from the grid at its recorded position.
func generateGrid(src Source, gridSize, wordCount int, category string) ([][]string, []placedWord) {
	grid := make([][]string, gridSize)
	for r := range grid {
		grid[r] = make([]string, gridSize)
	}

	list, ok := wordLists[category]
	if !ok {
		list = wordLists["general"]
	}
	var pool []string
	for _, w := range shuffle(src, list) {
		if len([]rune(w)) <= gridSize {
			pool = append(pool, w)
		}
	}

	var placed []placedWord
	attempts := 0
	for _, word := range pool {
		if len(placed) >= wordCount || attempts > maxPlacementAttempts {
			break
		}
		letters := []rune(word)

		for _, dir := range shuffle(src, directions) {
			// Collect every start cell this word fits from.
			var positions [][2]int
			for r := 0; r < gridSize; r++ {
				for c := 0; c < gridSize; c++ {
					if canPlaceWord(grid, letters, r, c, dir) {
						positions = append(positions, [2]int{r, c})
					}
				}
			}
			attempts++

			if len(positions) == 0 {
				continue
			}
			pos := positions[src.Intn(len(positions))]
			placeWord(grid, letters, pos[0], pos[1], dir)
			placed = append(placed, placedWord{
				Word:      word,
				StartRow:  pos[0],
				StartCol:  pos[1],
				Direction: dir,
			})
			break
		}
	}

	for r := 0; r < gridSize; r++ {
		for c := 0; c < gridSize; c++ {
			if grid[r][c] == "" {
				grid[r][c] = string(alphabet[src.Intn(len(alphabet))])
			}
		}
	}

	return grid, placed
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

// checkSelection resolves a line selection against the unfound words and
// returns the index of the matched word, or -1. A selection read backwards
// also claims the word.
func checkSelection(grid [][]string, words []placedWord, startRow, startCol, endRow, endCol int) int {
	dr := sign(endRow - startRow)
	dc := sign(endCol - startCol)

	rowDiff := abs(endRow - startRow)
	colDiff := abs(endCol - startCol)
	if rowDiff != 0 && colDiff != 0 && rowDiff != colDiff {
		return -1
	}

	size := len(grid)
	length := max(rowDiff, colDiff) + 1
	var selected []rune
	for i := 0; i < length; i++ {
		r := startRow + dr*i
		c := startCol + dc*i
		if r < 0 || r >= size || c < 0 || c >= size {
			return -1
		}
		selected = append(selected, []rune(grid[r][c])...)
	}
	forward := string(selected)
	reversed := reverseRunes(selected)

	for i, w := range words {
		if w.FoundBy != nil {
			continue
		}
		if forward == w.Word && w.StartRow == startRow && w.StartCol == startCol {
			return i
		}
		if reversed == w.Word {
			return i
		}
	}
	return -1
}

func reverseRunes(runes []rune) string {
	out := make([]rune, len(runes))
	for i, r := range runes {
		out[len(runes)-1-i] = r
	}
	return string(out)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
