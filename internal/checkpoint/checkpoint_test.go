package checkpoint

import (
	"context"
	"errors"
	"testing"

	"randsearch/internal/obsfilter"
)

func sampleCheckpoint() Checkpoint {
	return Checkpoint{
		VersionedRecord: Stamp(),
		RunID:           "run-1",
		Step:            42,
		Weights:         []float64{0.1, -0.2, 0.3},
		Episodes:        640,
		Timesteps:       128000,
		Filter: obsfilter.Snapshot{
			Dim:   3,
			Count: 1000,
			Mean:  []float64{1, 2, 3},
			M2:    []float64{4, 5, 6},
		},
		Optimizer: OptimizerState{Velocity: []float64{0.01, 0.02, 0.03}},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	cp := sampleCheckpoint()
	payload, err := EncodeCheckpoint(cp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeCheckpoint(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RunID != cp.RunID || decoded.Step != cp.Step || decoded.Episodes != cp.Episodes || decoded.Timesteps != cp.Timesteps {
		t.Fatalf("decoded checkpoint differs: %+v", decoded)
	}
	for i := range cp.Weights {
		if decoded.Weights[i] != cp.Weights[i] {
			t.Fatalf("weights differ at %d", i)
		}
	}
	if decoded.Filter.Count != cp.Filter.Count {
		t.Fatalf("filter count differs: %v", decoded.Filter.Count)
	}
	if decoded.Optimizer.Velocity[2] != 0.03 {
		t.Fatalf("optimizer state differs: %v", decoded.Optimizer.Velocity)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	cp := sampleCheckpoint()
	cp.SchemaVersion = 99
	payload, err := EncodeCheckpoint(cp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeCheckpoint(payload); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestMemoryStoreCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	cp := sampleCheckpoint()
	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.GetCheckpoint(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("checkpoint not found")
	}
	got.Weights[0] = 99
	again, _, _ := store.GetCheckpoint(ctx, "run-1")
	if again.Weights[0] == 99 {
		t.Fatal("store returned aliasing weights")
	}

	if _, ok, err := store.GetCheckpoint(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing checkpoint: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreRunsAndHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, id := range []string{"b", "a"} {
		record := RunRecord{VersionedRecord: Stamp(), RunID: id, EnvName: "cart-pole", Steps: 10}
		if err := store.SaveRun(ctx, record); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}
	records, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(records) != 2 || records[0].RunID != "a" || records[1].RunID != "b" {
		t.Fatalf("unexpected run listing: %+v", records)
	}

	if err := store.SaveRewardHistory(ctx, "a", []float64{1, 2, 3}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history, ok, err := store.GetRewardHistory(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%v err=%v", ok, err)
	}
	if len(history) != 3 || history[2] != 3 {
		t.Fatalf("unexpected history: %v", history)
	}
}

func TestFactory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("unexpected store type %T", store)
	}
	if _, err := NewStore("etcd", ""); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
