// Package catalog loads case definitions from YAML and serves them
// read-only to the session layer. The catalog owns definition mutation;
// a definition handed out is immutable for the life of a resolution.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/session"
)

// LoadCaseFromBytes parses a single case definition from raw YAML bytes.
//
// Precondition: guaranteedTiers lists the tiers carrying a pity rule.
// Postcondition: returns a validated definition or an error.
func LoadCaseFromBytes(data []byte, guaranteedTiers []loot.RarityTier) (loot.CaseDefinition, error) {
	var def loot.CaseDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return loot.CaseDefinition{}, fmt.Errorf("parsing case YAML: %w", err)
	}
	if err := def.Validate(guaranteedTiers); err != nil {
		return loot.CaseDefinition{}, err
	}
	return def, nil
}

// LoadCasesFromDir reads all *.yaml files in dir and returns the parsed
// case definitions.
//
// Precondition: dir must be a readable directory.
// Postcondition: returns all definitions or an error on the first parse or
// validate failure; on error, the partial result is discarded.
func LoadCasesFromDir(dir string, guaranteedTiers []loot.RarityTier) ([]loot.CaseDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading case dir %q: %w", dir, err)
	}

	var defs []loot.CaseDefinition
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		def, err := LoadCaseFromBytes(data, guaranteedTiers)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Store is an immutable in-memory case index satisfying session.Catalog.
type Store struct {
	cases map[string]loot.CaseDefinition
}

// NewStore indexes the given definitions by ID.
//
// Postcondition: returns an error on duplicate case IDs.
func NewStore(defs []loot.CaseDefinition) (*Store, error) {
	cases := make(map[string]loot.CaseDefinition, len(defs))
	for _, def := range defs {
		if _, ok := cases[def.ID]; ok {
			return nil, fmt.Errorf("duplicate case id %q", def.ID)
		}
		cases[def.ID] = def
	}
	return &Store{cases: cases}, nil
}

// Case implements session.Catalog.
func (s *Store) Case(ctx context.Context, caseID string) (loot.CaseDefinition, error) {
	if err := ctx.Err(); err != nil {
		return loot.CaseDefinition{}, err
	}
	def, ok := s.cases[caseID]
	if !ok {
		return loot.CaseDefinition{}, fmt.Errorf("%w: %q", session.ErrCaseNotFound, caseID)
	}
	return def, nil
}

// Len returns the number of indexed cases.
func (s *Store) Len() int { return len(s.cases) }

// IDs returns the indexed case IDs in no particular order.
func (s *Store) IDs() []string {
	out := make([]string, 0, len(s.cases))
	for id := range s.cases {
		out = append(out, id)
	}
	return out
}
