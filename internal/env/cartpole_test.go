package env

import (
	"errors"
	"testing"
)

func TestCartPoleDeterministicUnderSeed(t *testing.T) {
	a := NewCartPole(42)
	b := NewCartPole(42)

	obsA, _ := a.Reset()
	obsB, _ := b.Reset()
	for i := range obsA {
		if obsA[i] != obsB[i] {
			t.Fatalf("reset diverges at %d", i)
		}
	}
	for step := 0; step < 50; step++ {
		nextA, rewardA, doneA, err := a.Step([]float64{0.3})
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		nextB, rewardB, doneB, err := b.Step([]float64{0.3})
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if rewardA != rewardB || doneA != doneB {
			t.Fatalf("trajectory diverges at step %d", step)
		}
		for i := range nextA {
			if nextA[i] != nextB[i] {
				t.Fatalf("observation diverges at step %d", step)
			}
		}
		if doneA {
			break
		}
	}
}

func TestCartPoleEpisodeTerminates(t *testing.T) {
	e := NewCartPole(7)
	if _, err := e.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	// Constant maximum force tips the pole quickly.
	for step := 0; step < cartPoleMaxSteps; step++ {
		_, _, done, err := e.Step([]float64{1})
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if done {
			return
		}
	}
	t.Fatal("episode never terminated")
}

func TestCartPoleRejectsWrongActionSize(t *testing.T) {
	e := NewCartPole(1)
	if _, err := e.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, _, _, err := e.Step([]float64{1, 2}); err == nil {
		t.Fatal("expected action size error")
	}
}

func TestRegistryResolvesCartPole(t *testing.T) {
	e, err := New(CartPoleName, 3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if e.ObservationSize() != 4 || e.ActionSize() != 1 {
		t.Fatalf("unexpected sizes: obs=%d act=%d", e.ObservationSize(), e.ActionSize())
	}
	if _, err := New("no-such-env", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	if err := Register(CartPoleName, func(seed int64) (Env, error) {
		return NewCartPole(seed), nil
	}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}
