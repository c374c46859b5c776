// Package strategy loads user-supplied strategy artifacts and adapts them
// to the engine's contract. An artifact is a narrow JSON declaration that
// selects one of the vetted rules and parameterizes it; arbitrary code is
// never executed.
package strategy

import (
	"encoding/json"
	"fmt"
	"os"

	"stratbot/internal/ports"
)

// Artifact is the declarative strategy document supplied per deployment.
type Artifact struct {
	Name   string          `json:"name"`
	Rule   string          `json:"rule"`
	Params json.RawMessage `json:"params"`
}

// Rule identifiers accepted in artifacts.
const (
	RuleSMACrossover = "sma_crossover"
	RuleRSIReversion = "rsi_reversion"
)

// Load parses a strategy artifact document and returns the concrete
// strategy it declares. Any failure here is the fatal startup case: the
// engine never starts its loop without a valid contract.
func Load(raw []byte) (ports.Strategy, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty strategy artifact", ports.ErrConfigurationError)
	}

	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("%w: unparseable strategy artifact: %v", ports.ErrConfigurationError, err)
	}
	if art.Rule == "" {
		return nil, fmt.Errorf("%w: strategy artifact missing rule", ports.ErrConfigurationError)
	}

	switch art.Rule {
	case RuleSMACrossover:
		return newSMACrossover(art)
	case RuleRSIReversion:
		return newRSIReversion(art)
	default:
		return nil, fmt.Errorf("%w: unknown strategy rule %q", ports.ErrConfigurationError, art.Rule)
	}
}

// LoadFile reads and parses a strategy artifact from disk.
func LoadFile(path string) (ports.Strategy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading strategy artifact %q: %v", ports.ErrConfigurationError, path, err)
	}
	return Load(raw)
}

func decodeParams(art Artifact, dst interface{}) error {
	if len(art.Params) == 0 {
		return nil // all params optional, rules carry defaults
	}
	if err := json.Unmarshal(art.Params, dst); err != nil {
		return fmt.Errorf("%w: invalid params for rule %q: %v", ports.ErrConfigurationError, art.Rule, err)
	}
	return nil
}
