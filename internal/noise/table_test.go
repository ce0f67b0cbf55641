package noise

import (
	"errors"
	"math"
	"testing"
)

func TestNewTableReproducible(t *testing.T) {
	a, err := NewTable(4096, 12345)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	b, err := NewTable(4096, 12345)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	for i := 0; i < a.Len(); i++ {
		av, _ := a.Get(i, 1)
		bv, _ := b.Get(i, 1)
		if av[0] != bv[0] {
			t.Fatalf("tables diverge at %d: %v != %v", i, av[0], bv[0])
		}
	}
}

func TestNewTableSeedChangesContent(t *testing.T) {
	a, _ := NewTable(256, 1)
	b, _ := NewTable(256, 2)
	same := true
	for i := 0; i < 256; i++ {
		av, _ := a.Get(i, 1)
		bv, _ := b.Get(i, 1)
		if av[0] != bv[0] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical tables")
	}
}

func TestNewTableRoughlyStandardNormal(t *testing.T) {
	table, err := NewTable(100_000, 7)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	values, _ := table.Get(0, table.Len())
	var sum, sumSq float64
	for _, v := range values {
		sum += v
		sumSq += v * v
	}
	n := float64(len(values))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if math.Abs(mean) > 0.02 {
		t.Fatalf("mean too far from 0: %v", mean)
	}
	if math.Abs(variance-1) > 0.05 {
		t.Fatalf("variance too far from 1: %v", variance)
	}
}

func TestGetDeterministic(t *testing.T) {
	table, _ := NewTable(1024, 99)
	first, err := table.Get(100, 32)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := table.Get(100, 32)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("repeated get differs at %d", i)
		}
	}
}

func TestGetOutOfRange(t *testing.T) {
	table, _ := NewTable(64, 1)
	cases := []struct {
		offset, dim int
	}{
		{offset: 60, dim: 5},
		{offset: -1, dim: 4},
		{offset: 0, dim: 65},
		{offset: 64, dim: 1},
	}
	for _, tc := range cases {
		if _, err := table.Get(tc.offset, tc.dim); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("get(%d,%d): expected ErrOutOfRange, got %v", tc.offset, tc.dim, err)
		}
	}
	if _, err := table.Get(60, 4); err != nil {
		t.Fatalf("boundary get should succeed: %v", err)
	}
}

func TestSampleOffsetBounds(t *testing.T) {
	table, _ := NewTable(128, 5)
	stream := table.Stream(11)
	for _, dim := range []int{1, 16, 127, 128} {
		for i := 0; i < 500; i++ {
			offset, err := stream.SampleOffset(dim)
			if err != nil {
				t.Fatalf("sample offset dim=%d: %v", dim, err)
			}
			if offset < 0 || offset > table.Len()-dim {
				t.Fatalf("offset %d out of [0,%d] for dim %d", offset, table.Len()-dim, dim)
			}
			if _, err := table.Get(offset, dim); err != nil {
				t.Fatalf("sampled offset not addressable: %v", err)
			}
		}
	}
}

func TestSampleOffsetDimTooLarge(t *testing.T) {
	table, _ := NewTable(32, 5)
	stream := table.Stream(1)
	if _, err := stream.SampleOffset(33); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestStreamsAreIndependent(t *testing.T) {
	table, _ := NewTable(1 << 16, 5)
	a := table.Stream(100)
	b := table.Stream(200)
	identical := true
	for i := 0; i < 64; i++ {
		ao, _ := a.SampleOffset(8)
		bo, _ := b.SampleOffset(8)
		if ao != bo {
			identical = false
		}
	}
	if identical {
		t.Fatal("differently seeded streams produced identical offset sequences")
	}
}
