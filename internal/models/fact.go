package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FactSource identifies where a fact's value came from.
// Text generation is deliberately not representable here: model output
// can never be turned into a Fact.
type FactSource string

const (
	// SourceMarketData indicates the value came from a market data provider
	SourceMarketData FactSource = "market-data"
	// SourceFiling indicates the value came from a regulatory filing
	SourceFiling FactSource = "filing"
	// SourceTranscript indicates the value came from an earnings call transcript
	SourceTranscript FactSource = "transcript"
	// SourceComputed indicates the value was derived from other facts in the same pack
	SourceComputed FactSource = "computed"
	// SourceStaticConfig indicates the value is a configured constant
	SourceStaticConfig FactSource = "static-config"
)

// Valid reports whether s is one of the known fact sources.
func (s FactSource) Valid() bool {
	switch s {
	case SourceMarketData, SourceFiling, SourceTranscript, SourceComputed, SourceStaticConfig:
		return true
	}
	return false
}

// Derivation records how a computed fact was produced: the formula and
// the keys of the input facts. Required for every fact with
// source=computed so numbers stay reproducible.
type Derivation struct {
	Formula   string   `json:"formula"`
	InputKeys []string `json:"input_keys"`
}

// Fact is a single traceable data point inside an evidence pack.
type Fact struct {
	Key        string      `json:"key"`
	Value      interface{} `json:"value"`
	Source     FactSource  `json:"source"`
	AsOf       time.Time   `json:"as_of"`
	Derivation *Derivation `json:"derivation,omitempty"` // required when Source == computed

	// Degradation markers set by the builder, never by adapters.
	Stale   bool `json:"stale,omitempty"`   // value substituted from a prior-day cache
	Missing bool `json:"missing,omitempty"` // no value could be obtained under policy
}

// NewFact creates a fact with the given key, value and source.
func NewFact(key string, value interface{}, source FactSource, asOf time.Time) *Fact {
	return &Fact{
		Key:    key,
		Value:  value,
		Source: source,
		AsOf:   asOf,
	}
}

// NewComputedFact creates a computed fact carrying its derivation.
func NewComputedFact(key string, value interface{}, asOf time.Time, formula string, inputKeys ...string) *Fact {
	return &Fact{
		Key:    key,
		Value:  value,
		Source: SourceComputed,
		AsOf:   asOf,
		Derivation: &Derivation{
			Formula:   formula,
			InputKeys: inputKeys,
		},
	}
}

// NewMissingFact creates a placeholder fact for a key that could not be
// resolved. The QA gate, not the builder, decides whether that blocks.
func NewMissingFact(key string, asOf time.Time) *Fact {
	return &Fact{
		Key:     key,
		Source:  SourceStaticConfig,
		AsOf:    asOf,
		Missing: true,
	}
}

// Decode unmarshals the fact value into out via a JSON round-trip, so
// callers see the same shape whether the value is a live struct or
// generic JSON loaded back from a store.
func (f *Fact) Decode(out interface{}) error {
	if f == nil || f.Missing {
		return fmt.Errorf("fact value unavailable")
	}
	data, err := json.Marshal(f.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Float returns the fact value as a float64. Handles the numeric types
// JSON round-trips produce.
func (f *Fact) Float() (float64, bool) {
	if f == nil || f.Missing {
		return 0, false
	}
	switch v := f.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	}
	return 0, false
}

// String returns the fact value as a string.
func (f *Fact) String() (string, bool) {
	if f == nil || f.Missing {
		return "", false
	}
	s, ok := f.Value.(string)
	return s, ok
}

// Validate checks the fact's internal consistency.
func (f *Fact) Validate() error {
	if f.Key == "" {
		return fmt.Errorf("fact has empty key")
	}
	if !f.Source.Valid() {
		return fmt.Errorf("fact %s has unknown source %q", f.Key, f.Source)
	}
	if f.Source == SourceComputed {
		if f.Derivation == nil || len(f.Derivation.InputKeys) == 0 {
			return fmt.Errorf("computed fact %s has no derivation", f.Key)
		}
	}
	return nil
}
