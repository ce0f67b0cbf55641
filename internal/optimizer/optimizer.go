// Package optimizer implements the update rules fed by the aggregated
// gradient estimate. Step returns the delta the trainer subtracts from the
// canonical weights, so rules return the negated scaled gradient and the net
// effect is ascent on reward.
package optimizer

import "fmt"

type Optimizer interface {
	// Step maps a gradient estimate to a weight delta. The input is not
	// retained or mutated.
	Step(grad []float64) ([]float64, error)
}

// SGD is the plain rule: delta = -lr * grad.
type SGD struct {
	LearningRate float64
}

func (o SGD) Step(grad []float64) ([]float64, error) {
	delta := make([]float64, len(grad))
	for i, g := range grad {
		delta[i] = -o.LearningRate * g
	}
	return delta, nil
}

// Momentum keeps a velocity vector: v = gamma*v + grad; delta = -lr * v.
// The velocity dimension locks to the first gradient seen.
type Momentum struct {
	LearningRate float64
	Gamma        float64

	velocity []float64
}

func NewMomentum(learningRate, gamma float64) *Momentum {
	return &Momentum{LearningRate: learningRate, Gamma: gamma}
}

func (o *Momentum) Step(grad []float64) ([]float64, error) {
	if o.velocity == nil {
		o.velocity = make([]float64, len(grad))
	}
	if len(grad) != len(o.velocity) {
		return nil, fmt.Errorf("optimizer: gradient length %d, velocity length %d", len(grad), len(o.velocity))
	}
	delta := make([]float64, len(grad))
	for i, g := range grad {
		o.velocity[i] = o.Gamma*o.velocity[i] + g
		delta[i] = -o.LearningRate * o.velocity[i]
	}
	return delta, nil
}

// Velocity exposes the accumulator for checkpointing.
func (o *Momentum) Velocity() []float64 {
	return append([]float64(nil), o.velocity...)
}

// SetVelocity restores the accumulator from a checkpoint.
func (o *Momentum) SetVelocity(v []float64) {
	o.velocity = append([]float64(nil), v...)
}
