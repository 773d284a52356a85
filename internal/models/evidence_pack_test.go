package models

import (
	"strings"
	"testing"
	"time"
)

func testTime() time.Time {
	return time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
}

// TestEvidencePackSealImmutable verifies packs reject writes after sealing
func TestEvidencePackSealImmutable(t *testing.T) {
	pack := NewEvidencePack("daily-brief-20260310", "2026-03-10", "market", []string{"spx_change_pct"})

	if err := pack.Put(NewFact("spx_change_pct", 1.25, SourceMarketData, testTime())); err != nil {
		t.Fatalf("Put before seal failed: %v", err)
	}

	if err := pack.Seal(testTime()); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if !pack.Sealed() {
		t.Error("pack should report sealed")
	}
	if pack.ContentHash == "" {
		t.Error("sealed pack should carry a content hash")
	}
	if len(pack.ContentHash) != 16 {
		t.Errorf("content hash length = %d, want 16", len(pack.ContentHash))
	}

	err := pack.Put(NewFact("vix", 18.2, SourceMarketData, testTime()))
	if err == nil {
		t.Fatal("Put after seal should fail")
	}
	if !strings.Contains(err.Error(), "sealed") {
		t.Errorf("unexpected error: %v", err)
	}

	if err := pack.Seal(testTime()); err == nil {
		t.Error("double seal should fail")
	}
}

// TestEvidencePackComputedDerivation verifies computed facts must
// reference keys already present in the pack
func TestEvidencePackComputedDerivation(t *testing.T) {
	pack := NewEvidencePack("deep-dive-20260310-nvda", "2026-03-10", "NVDA", nil)

	if err := pack.Put(NewFact("current_price", 842.50, SourceMarketData, testTime())); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := pack.Put(NewFact("ntm_eps", 27.10, SourceMarketData, testTime())); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	good := NewComputedFact("forward_pe", 842.50/27.10, testTime(),
		"current_price / ntm_eps", "current_price", "ntm_eps")
	if err := pack.Put(good); err != nil {
		t.Fatalf("computed fact with resolvable inputs rejected: %v", err)
	}

	dangling := NewComputedFact("ev_ebitda", 31.4, testTime(),
		"enterprise_value / ebitda", "enterprise_value", "ebitda")
	if err := pack.Put(dangling); err == nil {
		t.Error("computed fact referencing absent keys should be rejected")
	}

	bare := &Fact{Key: "peg_ratio", Value: 1.4, Source: SourceComputed, AsOf: testTime()}
	if err := pack.Put(bare); err == nil {
		t.Error("computed fact without derivation should be rejected")
	}
}

// TestEvidencePackHashDeterministic verifies insertion order does not
// change the canonical hash
func TestEvidencePackHashDeterministic(t *testing.T) {
	build := func(keys []string) *EvidencePack {
		pack := NewEvidencePack("daily-brief-20260310", "2026-03-10", "market", nil)
		values := map[string]float64{
			"spx_change_pct": 1.25,
			"vix":            18.2,
			"ust10y_yield":   4.31,
			"wti_change_pct": -0.8,
			"btc_change_pct": 2.45,
		}
		for _, k := range keys {
			if err := pack.Put(NewFact(k, values[k], SourceMarketData, testTime())); err != nil {
				t.Fatalf("Put(%s) failed: %v", k, err)
			}
		}
		if err := pack.Seal(testTime()); err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		return pack
	}

	forward := build([]string{"spx_change_pct", "vix", "ust10y_yield", "wti_change_pct", "btc_change_pct"})
	reversed := build([]string{"btc_change_pct", "wti_change_pct", "ust10y_yield", "vix", "spx_change_pct"})

	if forward.ContentHash != reversed.ContentHash {
		t.Errorf("hash depends on insertion order: %s != %s", forward.ContentHash, reversed.ContentHash)
	}
}

// TestEvidencePackMissingKeys verifies missing-key reporting for QA
func TestEvidencePackMissingKeys(t *testing.T) {
	pack := NewEvidencePack("deep-dive-20260310-nvda", "2026-03-10", "NVDA",
		[]string{"current_price", "ntm_eps", "ev_ebitda"})

	if err := pack.Put(NewFact("current_price", 842.50, SourceMarketData, testTime())); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := pack.Put(NewMissingFact("ev_ebitda", testTime())); err != nil {
		t.Fatalf("Put missing fact failed: %v", err)
	}

	missing := pack.MissingKeys()
	if len(missing) != 2 {
		t.Fatalf("MissingKeys = %v, want 2 entries", missing)
	}
	for _, k := range missing {
		if k != "ntm_eps" && k != "ev_ebitda" {
			t.Errorf("unexpected missing key %s", k)
		}
	}

	if pack.Has("ev_ebitda") {
		t.Error("fact marked missing should not count as present")
	}
}

// TestEvidencePackNextVersion verifies corrections produce a new open
// version instead of mutating the sealed pack
func TestEvidencePackNextVersion(t *testing.T) {
	pack := NewEvidencePack("daily-brief-20260310", "2026-03-10", "market", nil)
	if err := pack.Put(NewFact("vix", 18.2, SourceMarketData, testTime())); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := pack.Seal(testTime()); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	next := pack.NextVersion()
	if next.Version != 2 {
		t.Errorf("next version = %d, want 2", next.Version)
	}
	if next.Sealed() {
		t.Error("next version should start unsealed")
	}
	if err := next.Put(NewFact("vix", 19.0, SourceMarketData, testTime())); err != nil {
		t.Fatalf("correction on next version failed: %v", err)
	}

	got, _ := pack.Float("vix")
	if got != 18.2 {
		t.Errorf("original pack mutated: vix = %v", got)
	}
}
