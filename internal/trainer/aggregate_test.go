package trainer

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"randsearch/internal/noise"
	"randsearch/internal/rollout"
)

func testTable(t *testing.T) *noise.Table {
	t.Helper()
	table, err := noise.NewTable(256, 3)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestAggregateTrimsToTopDeltas(t *testing.T) {
	table := testTable(t)
	const dim = 2
	trials := []rollout.Trial{
		{Offset: 0, Rewards: [2]float64{1, 0}},
		{Offset: 10, Rewards: [2]float64{5, 2}},
		{Offset: 20, Rewards: [2]float64{3, 1}},
		{Offset: 30, Rewards: [2]float64{8, 0}},
	}

	grad, stats, err := aggregate(trials, table, dim, 2, 4)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if stats.Retained != 2 {
		t.Fatalf("retained = %d, want 2", stats.Retained)
	}

	// Only the two best pairs survive the cut at the 50th percentile.
	std := stat.PopStdDev([]float64{5, 2, 8, 0}, nil)
	if stats.RewardStd != std {
		t.Fatalf("reward std = %v, want %v", stats.RewardStd, std)
	}
	want := make([]float64, dim)
	for _, kept := range []rollout.Trial{trials[1], trials[3]} {
		delta, err := table.Get(kept.Offset, dim)
		if err != nil {
			t.Fatalf("Get(%d): %v", kept.Offset, err)
		}
		floats.AddScaled(want, (kept.Rewards[0]-kept.Rewards[1])/std, delta)
	}
	floats.Scale(0.5, want)
	if !floats.EqualApprox(grad, want, 1e-12) {
		t.Fatalf("grad = %v, want %v", grad, want)
	}
}

func TestAggregateKeepsTiesAtCutoff(t *testing.T) {
	table := testTable(t)
	trials := []rollout.Trial{
		{Offset: 0, Rewards: [2]float64{1, 0}},
		{Offset: 4, Rewards: [2]float64{5, 1}},
		{Offset: 8, Rewards: [2]float64{5, 2}},
		{Offset: 12, Rewards: [2]float64{5, 3}},
	}

	_, stats, err := aggregate(trials, table, 2, 2, 4)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if stats.Retained != 3 {
		t.Fatalf("retained = %d, want 3 with ties at the cutoff", stats.Retained)
	}
}

func TestAggregateKeepsAllWithoutTrimming(t *testing.T) {
	table := testTable(t)
	trials := []rollout.Trial{
		{Offset: 0, Rewards: [2]float64{1, 0}},
		{Offset: 4, Rewards: [2]float64{2, 1}},
	}

	_, stats, err := aggregate(trials, table, 2, 2, 2)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if stats.Retained != 2 {
		t.Fatalf("retained = %d, want 2", stats.Retained)
	}
}

func TestAggregateReorderInvariant(t *testing.T) {
	table := testTable(t)
	trials := []rollout.Trial{
		{Offset: 0, Rewards: [2]float64{1, 0}},
		{Offset: 10, Rewards: [2]float64{5, 2}},
		{Offset: 20, Rewards: [2]float64{3, 1}},
		{Offset: 30, Rewards: [2]float64{8, 0}},
	}
	reversed := []rollout.Trial{trials[3], trials[2], trials[1], trials[0]}

	grad, _, err := aggregate(trials, table, 2, 3, 4)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	regrad, _, err := aggregate(reversed, table, 2, 3, 4)
	if err != nil {
		t.Fatalf("aggregate reversed: %v", err)
	}
	if !floats.EqualApprox(grad, regrad, 1e-12) {
		t.Fatalf("gradient depends on trial order: %v vs %v", grad, regrad)
	}
}

func TestAggregateZeroVariance(t *testing.T) {
	table := testTable(t)
	trials := []rollout.Trial{
		{Offset: 0, Rewards: [2]float64{2, 2}},
		{Offset: 4, Rewards: [2]float64{2, 2}},
	}

	_, _, err := aggregate(trials, table, 2, 2, 2)
	if !errors.Is(err, ErrZeroVariance) {
		t.Fatalf("err = %v, want ErrZeroVariance", err)
	}
}

func TestAggregateEmptyBatch(t *testing.T) {
	table := testTable(t)
	if _, _, err := aggregate(nil, table, 2, 2, 2); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("err = %v, want ErrEmptyBatch", err)
	}
}
