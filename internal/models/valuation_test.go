package models

import "testing"

// TestSensitivityGridCells verifies cell(i,j) = eps[i] * multiple[j]
// exactly, with no rounding
func TestSensitivityGridCells(t *testing.T) {
	eps := []float64{4.0, 4.5, 5.0, 5.5, 6.0}
	mults := []float64{10, 12.5, 15, 17.5, 20}

	grid := NewSensitivityGrid(eps, mults)

	rows, cols := grid.Dims()
	if rows != 5 || cols != 5 {
		t.Fatalf("Dims = (%d, %d), want (5, 5)", rows, cols)
	}

	for i := range eps {
		for j := range mults {
			want := eps[i] * mults[j]
			if grid.Cells[i][j] != want {
				t.Errorf("cell(%d,%d) = %v, want %v", i, j, grid.Cells[i][j], want)
			}
		}
	}

	// Spot check the center cell against the base scenario product.
	if grid.Cells[2][2] != 75.0 {
		t.Errorf("center cell = %v, want 75.0", grid.Cells[2][2])
	}
}

// TestHorizonValuationOrdered verifies the monotonicity check
func TestHorizonValuationOrdered(t *testing.T) {
	tests := []struct {
		name             string
		bear, base, bull float64
		want             bool
	}{
		{"strictly increasing", 50, 75, 100, true},
		{"equal bear and base", 75, 75, 100, true},
		{"all equal", 75, 75, 75, true},
		{"bear above base", 80, 75, 100, false},
		{"bull below base", 50, 75, 70, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &HorizonValuation{
				Horizon: HorizonMedium,
				Bear:    ScenarioValuation{Scenario: ScenarioBear, TargetPrice: tt.bear},
				Base:    ScenarioValuation{Scenario: ScenarioBase, TargetPrice: tt.base},
				Bull:    ScenarioValuation{Scenario: ScenarioBull, TargetPrice: tt.bull},
			}
			if got := h.Ordered(); got != tt.want {
				t.Errorf("Ordered() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestRunStatusTransitions verifies forward-only status ordering
func TestRunStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from RunStatus
		to   RunStatus
		want bool
	}{
		{"generated to qa_passed", RunStatusGenerated, RunStatusQAPassed, true},
		{"qa_passed to published", RunStatusQAPassed, RunStatusPublished, true},
		{"published to email_sent", RunStatusPublished, RunStatusEmailSent, true},
		{"generated straight to published", RunStatusGenerated, RunStatusPublished, true},
		{"published back to generated", RunStatusPublished, RunStatusGenerated, false},
		{"same status", RunStatusPublished, RunStatusPublished, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanAdvanceTo(tt.to); got != tt.want {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
