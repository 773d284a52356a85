package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// EvidencePack is the immutable, per-article bundle of facts the writer
// may reference. Build-once: after Seal, any mutation attempt fails and
// a correction produces a new pack version instead.
type EvidencePack struct {
	ArticleID    string           `json:"article_id"`
	AsOfDate     string           `json:"as_of_date"` // YYYY-MM-DD
	Entity       string           `json:"entity"`     // ticker or theme slug
	Facts        map[string]*Fact `json:"facts"`
	RequiredKeys []string         `json:"required_keys"`
	Version      int              `json:"version"`
	ContentHash  string           `json:"content_hash,omitempty"`
	SealedAt     *time.Time       `json:"sealed_at,omitempty"`

	sealed bool
}

// NewEvidencePack creates an open pack for the given article and date.
func NewEvidencePack(articleID, asOfDate, entity string, requiredKeys []string) *EvidencePack {
	keys := make([]string, len(requiredKeys))
	copy(keys, requiredKeys)
	sort.Strings(keys)
	return &EvidencePack{
		ArticleID:    articleID,
		AsOfDate:     asOfDate,
		Entity:       entity,
		Facts:        make(map[string]*Fact),
		RequiredKeys: keys,
		Version:      1,
	}
}

// Put inserts a fact into an unsealed pack. Computed facts must reference
// only keys already present; insertion order is otherwise irrelevant.
func (p *EvidencePack) Put(f *Fact) error {
	if p.Sealed() {
		return fmt.Errorf("evidence pack %s is sealed", p.ArticleID)
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Source == SourceComputed {
		for _, dep := range f.Derivation.InputKeys {
			if _, ok := p.Facts[dep]; !ok {
				return fmt.Errorf("computed fact %s references %s which is not in the pack", f.Key, dep)
			}
		}
	}
	p.Facts[f.Key] = f
	return nil
}

// Get returns the fact for key, or nil if absent.
func (p *EvidencePack) Get(key string) *Fact {
	return p.Facts[key]
}

// Has reports whether key is present and carries a usable value.
func (p *EvidencePack) Has(key string) bool {
	f, ok := p.Facts[key]
	return ok && !f.Missing
}

// Float is a convenience accessor for numeric facts.
func (p *EvidencePack) Float(key string) (float64, bool) {
	return p.Facts[key].Float()
}

// Keys returns all fact keys in sorted order.
func (p *EvidencePack) Keys() []string {
	keys := make([]string, 0, len(p.Facts))
	for k := range p.Facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MissingKeys returns the required keys that are absent or marked missing.
func (p *EvidencePack) MissingKeys() []string {
	var missing []string
	for _, k := range p.RequiredKeys {
		if !p.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// Seal freezes the pack, validates derivations and computes the content
// hash over the canonical serialization. Sealing twice is an error.
func (p *EvidencePack) Seal(now time.Time) error {
	if p.Sealed() {
		return fmt.Errorf("evidence pack %s already sealed", p.ArticleID)
	}
	for key, f := range p.Facts {
		if f.Source != SourceComputed {
			continue
		}
		for _, dep := range f.Derivation.InputKeys {
			if _, ok := p.Facts[dep]; !ok {
				return fmt.Errorf("computed fact %s has dangling derivation key %s", key, dep)
			}
		}
	}
	hash, err := p.CanonicalHash()
	if err != nil {
		return fmt.Errorf("failed to hash evidence pack: %w", err)
	}
	sealedAt := now.UTC()
	p.ContentHash = hash
	p.SealedAt = &sealedAt
	p.sealed = true
	return nil
}

// Sealed reports whether the pack has been frozen. Packs loaded back
// from the artifact store carry SealedAt instead of the in-memory flag.
func (p *EvidencePack) Sealed() bool {
	return p.sealed || p.SealedAt != nil
}

// CanonicalHash computes the content hash: SHA-256 over the canonical
// JSON serialization (sorted keys), truncated to 16 hex chars. Hash and
// seal metadata are excluded so the hash is stable across re-loads.
func (p *EvidencePack) CanonicalHash() (string, error) {
	shadow := struct {
		ArticleID    string           `json:"article_id"`
		AsOfDate     string           `json:"as_of_date"`
		Entity       string           `json:"entity"`
		Facts        map[string]*Fact `json:"facts"`
		RequiredKeys []string         `json:"required_keys"`
		Version      int              `json:"version"`
	}{p.ArticleID, p.AsOfDate, p.Entity, p.Facts, p.RequiredKeys, p.Version}

	data, err := json.Marshal(&shadow)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}

// NextVersion returns an open copy of the pack with the version bumped,
// for fetch corrections. The original stays sealed and untouched.
func (p *EvidencePack) NextVersion() *EvidencePack {
	next := NewEvidencePack(p.ArticleID, p.AsOfDate, p.Entity, p.RequiredKeys)
	next.Version = p.Version + 1
	for k, f := range p.Facts {
		copied := *f
		next.Facts[k] = &copied
	}
	return next
}
