package wordsearch

// Spanish word lists by category. Every entry is upper-case and uses the
// same alphabet the filler letters are drawn from.
var wordLists = map[string][]string{
	"general": {
		"ESCUELA",
		"CIENCIA",
		"HISTORIA",
		"PLANETA",
		"OCEANO",
		"MONTAÑA",
		"BOSQUE",
		"ANIMAL",
		"MUSICA",
		"PINTURA",
		"LENGUA",
		"NUMERO",
		"ENERGIA",
		"ATOMO",
		"CELULA",
		"TIERRA",
		"VOLCAN",
		"COMETA",
		"ESTRELLA",
		"GALAXIA",
		"SISTEMA",
		"CULTURA",
		"LITORAL",
		"CUMBRE",
		"SELVA",
		"FLORA",
		"FAUNA",
		"CLIMA",
		"MAPA",
		"ROCA",
		"ISLA",
		"LAGO",
		"MESA",
		"LIBRO",
		"LAPIZ",
		"RELOJ",
		"BARCO",
		"AVION",
		"PUENTE",
		"TORRE",
	},
}

// alphabet supplies the filler letters for empty cells. Ñ is a distinct
// letter in Spanish, so the set is kept as runes rather than bytes.
var alphabet = []rune("ABCDEFGHIJKLMNÑOPQRSTUVWXYZ")

const (
	dirHorizontal   = "horizontal"
	dirVertical     = "vertical"
	dirDiagonalDown = "diagonal-down"
	dirDiagonalUp   = "diagonal-up"
)

var directions = []string{dirHorizontal, dirVertical, dirDiagonalDown, dirDiagonalUp}

// directionDelta maps a direction name to its (row, col) step.
func directionDelta(dir string) (int, int) {
	switch dir {
	case dirHorizontal:
		return 0, 1
	case dirVertical:
		return 1, 0
	case dirDiagonalDown:
		return 1, 1
	case dirDiagonalUp:
		return -1, 1
	}
	return 0, 0
}
