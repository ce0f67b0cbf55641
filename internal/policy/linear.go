package policy

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"randsearch/internal/obsfilter"
)

// Linear computes action = W * obs, with W the flat weight vector viewed as
// an actDim x obsDim matrix in row-major order. Weights start at zero so the
// first search step perturbs around the origin.
type Linear struct {
	obsDim int
	actDim int
	w      *mat.Dense
	filter obsfilter.Filter
}

func NewLinear(obsDim, actDim int, filter obsfilter.Filter) (*Linear, error) {
	if obsDim <= 0 || actDim <= 0 {
		return nil, fmt.Errorf("policy: dimensions must be > 0, got obs=%d act=%d", obsDim, actDim)
	}
	if filter == nil {
		filter = &obsfilter.Passthrough{}
	}
	return &Linear{
		obsDim: obsDim,
		actDim: actDim,
		w:      mat.NewDense(actDim, obsDim, make([]float64, actDim*obsDim)),
		filter: filter,
	}, nil
}

func (p *Linear) Act(obs []float64) ([]float64, error) {
	if len(obs) != p.obsDim {
		return nil, fmt.Errorf("policy: observation size %d, expected %d", len(obs), p.obsDim)
	}
	normalized := p.filter.Normalize(obs)
	action := mat.NewVecDense(p.actDim, nil)
	action.MulVec(p.w, mat.NewVecDense(p.obsDim, normalized))
	return action.RawVector().Data, nil
}

func (p *Linear) SetWeights(w []float64) error {
	if len(w) != p.Dim() {
		return fmt.Errorf("policy: weight vector length %d, expected %d", len(w), p.Dim())
	}
	copy(p.w.RawMatrix().Data, w)
	return nil
}

func (p *Linear) Weights() []float64 {
	return append([]float64(nil), p.w.RawMatrix().Data...)
}

func (p *Linear) Dim() int {
	return p.obsDim * p.actDim
}

func (p *Linear) Filter() obsfilter.Filter {
	return p.filter
}
