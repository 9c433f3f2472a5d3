package engine

import "time"

// AdjustmentOutcome reports what the actual-production reconciliation did.
// Lifecycle is single use: computed once per run and discarded after
// application.
type AdjustmentOutcome struct {
	Scale        float64 `json:"scale"`
	PredictedKWh float64 `json:"predicted_so_far_kwh"`
	ActualKWh    float64 `json:"actual_kwh"`
	// Applied is false when the outcome is a no-op (reset or undefined scale).
	Applied bool `json:"applied"`
	// Reset marks actual == 0, defined as "reset to baseline" rather than
	// "measured zero production".
	Reset bool `json:"reset"`
	// Undefined marks a positive actual against zero predicted-so-far. The
	// division is skipped and the condition reported instead.
	Undefined bool `json:"undefined"`
}

// ComputeScale derives the rescale factor from measured cumulative energy
// against the forecast integrated up to the same cutoff.
func ComputeScale(predictedKWh, actualKWh float64) AdjustmentOutcome {
	out := AdjustmentOutcome{Scale: 1, PredictedKWh: predictedKWh, ActualKWh: actualKWh}
	if actualKWh == 0 {
		out.Reset = true
		return out
	}
	if predictedKWh <= 0 {
		out.Undefined = true
		return out
	}
	scale := actualKWh / predictedKWh
	if scale < 0 {
		scale = 0
	}
	out.Scale = scale
	out.Applied = true
	return out
}

// PredictedKWhUpTo integrates the series over samples at or before now.
func PredictedKWhUpTo(powerW []float64, hours []float64, times []time.Time, now time.Time) float64 {
	var sum float64
	for i := range powerW {
		if times[i].After(now) {
			continue
		}
		sum += powerW[i] * hours[i]
	}
	return sum / 1000
}

// ApplyAdjustment scales samples strictly after now and leaves everything at
// or before now untouched. The input slice is not mutated.
func ApplyAdjustment(powerW []float64, times []time.Time, now time.Time, scale float64) []float64 {
	out := make([]float64, len(powerW))
	for i, p := range powerW {
		if times[i].After(now) {
			out[i] = p * scale
		} else {
			out[i] = p
		}
	}
	return out
}
