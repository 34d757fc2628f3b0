// Package catalog loads the playable-game metadata served to lobby clients.
// The catalog is static YAML content; the adapter registry is the source of
// truth for which games can actually run.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Game is the lobby-facing description of one playable game.
type Game struct {
	Slug              string `yaml:"slug"`
	Name              string `yaml:"name"`
	Description       string `yaml:"description"`
	Category          string `yaml:"category"`
	MinPlayers        int    `yaml:"min_players"`
	MaxPlayers        int    `yaml:"max_players"`
	EstimatedDuration string `yaml:"estimated_duration"`
}

// yamlGameFile is the top-level YAML structure for game metadata files.
type yamlGameFile struct {
	Game Game `yaml:"game"`
}

// Validate checks the metadata invariants.
//
// Postcondition: Returns nil only if slug and name are set and the player
// bounds satisfy 1 <= min <= max.
func (g *Game) Validate() error {
	if g.Slug == "" {
		return fmt.Errorf("game has no slug")
	}
	if g.Name == "" {
		return fmt.Errorf("game %s has no name", g.Slug)
	}
	if g.MinPlayers < 1 {
		return fmt.Errorf("game %s: min_players must be at least 1, got %d", g.Slug, g.MinPlayers)
	}
	if g.MaxPlayers < g.MinPlayers {
		return fmt.Errorf("game %s: max_players %d below min_players %d", g.Slug, g.MaxPlayers, g.MinPlayers)
	}
	return nil
}

// LoadGameFromFile reads and validates a single game metadata YAML file.
//
// Precondition: path must point to a valid YAML game file.
// Postcondition: Returns a validated Game or a non-nil error.
func LoadGameFromFile(path string) (*Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading game file %s: %w", path, err)
	}
	return LoadGameFromBytes(data)
}

// LoadGameFromBytes parses and validates game metadata from YAML bytes.
func LoadGameFromBytes(data []byte) (*Game, error) {
	var file yamlGameFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing game YAML: %w", err)
	}

	game := file.Game
	game.Description = strings.TrimSpace(game.Description)
	if err := game.Validate(); err != nil {
		return nil, fmt.Errorf("validating game: %w", err)
	}
	return &game, nil
}

// Catalog indexes loaded games by slug.
type Catalog struct {
	games map[string]*Game
}

// LoadFromDir loads all YAML files in dir as game metadata.
//
// Precondition: dir must be a valid directory path.
// Postcondition: Returns a catalog with at least one game, no duplicate
// slugs, or the first error encountered.
func LoadFromDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading games directory %s: %w", dir, err)
	}

	catalog := &Catalog{games: make(map[string]*Game)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		game, err := LoadGameFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading game from %s: %w", name, err)
		}
		if _, exists := catalog.games[game.Slug]; exists {
			return nil, fmt.Errorf("duplicate game slug %s in %s", game.Slug, name)
		}
		catalog.games[game.Slug] = game
	}

	if len(catalog.games) == 0 {
		return nil, fmt.Errorf("no game files found in %s", dir)
	}
	return catalog, nil
}

// Get returns the game with the given slug, or nil.
func (c *Catalog) Get(slug string) *Game {
	return c.games[slug]
}

// Games returns all games ordered by slug.
func (c *Catalog) Games() []*Game {
	out := make([]*Game, 0, len(c.games))
	for _, g := range c.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Resolver reports whether a game slug has a runnable implementation.
type Resolver interface {
	Slugs() []string
}

// CheckRunnable verifies every cataloged game resolves to a registered
// adapter. Run at boot so a metadata/implementation mismatch fails fast.
func (c *Catalog) CheckRunnable(r Resolver) error {
	registered := make(map[string]bool)
	for _, slug := range r.Slugs() {
		registered[slug] = true
	}
	for slug := range c.games {
		if !registered[slug] {
			return fmt.Errorf("cataloged game %s has no registered adapter", slug)
		}
	}
	return nil
}
