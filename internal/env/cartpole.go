package env

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

const CartPoleName = "cart-pole"

const (
	cartPoleGravity        = 9.81
	cartPoleMassCart       = 1.0
	cartPoleMassPole       = 0.1
	cartPolePoleLength     = 0.5
	cartPoleTotalMass      = cartPoleMassCart + cartPoleMassPole
	cartPolePoleMassLength = cartPoleMassPole * cartPolePoleLength
	cartPoleForceMax       = 10.0
	cartPoleTau            = 0.02

	cartPoleXThreshold     = 2.4
	cartPoleThetaThreshold = 12.0 * math.Pi / 180.0
	cartPoleMaxSteps       = 500
)

func init() {
	if err := Register(CartPoleName, func(seed int64) (Env, error) {
		return NewCartPole(seed), nil
	}); err != nil {
		panic(err)
	}
}

// CartPole is the classic balancing task with a continuous force input. The
// single action component is clipped to [-1, 1] and scaled to the maximum
// force, so a linear policy drives it directly.
type CartPole struct {
	rng   *rand.Rand
	state [4]float64
	steps int
}

func NewCartPole(seed int64) *CartPole {
	return &CartPole{rng: rand.New(rand.NewSource(uint64(seed)))}
}

func (e *CartPole) ObservationSize() int { return 4 }
func (e *CartPole) ActionSize() int      { return 1 }
func (e *CartPole) MaxEpisodeSteps() int { return cartPoleMaxSteps }

func (e *CartPole) Reset() ([]float64, error) {
	for i := range e.state {
		e.state[i] = e.rng.Float64()*0.1 - 0.05
	}
	e.steps = 0
	return e.observation(), nil
}

func (e *CartPole) Step(action []float64) ([]float64, float64, bool, error) {
	if len(action) != 1 {
		return nil, 0, false, fmt.Errorf("cart-pole: action size %d, expected 1", len(action))
	}
	force := math.Max(-1, math.Min(1, action[0])) * cartPoleForceMax

	x, xDot, theta, thetaDot := e.state[0], e.state[1], e.state[2], e.state[3]
	cosTheta := math.Cos(theta)
	sinTheta := math.Sin(theta)

	temp := (force + cartPolePoleMassLength*thetaDot*thetaDot*sinTheta) / cartPoleTotalMass
	thetaAcc := (cartPoleGravity*sinTheta - cosTheta*temp) /
		(cartPolePoleLength * (4.0/3.0 - cartPoleMassPole*cosTheta*cosTheta/cartPoleTotalMass))
	xAcc := temp - cartPolePoleMassLength*thetaAcc*cosTheta/cartPoleTotalMass

	e.state[0] = x + cartPoleTau*xDot
	e.state[1] = xDot + cartPoleTau*xAcc
	e.state[2] = theta + cartPoleTau*thetaDot
	e.state[3] = thetaDot + cartPoleTau*thetaAcc
	e.steps++

	done := e.state[0] < -cartPoleXThreshold || e.state[0] > cartPoleXThreshold ||
		e.state[2] < -cartPoleThetaThreshold || e.state[2] > cartPoleThetaThreshold ||
		e.steps >= cartPoleMaxSteps
	reward := 1.0
	if done && e.steps < cartPoleMaxSteps {
		reward = 0.0
	}
	return e.observation(), reward, done, nil
}

func (e *CartPole) observation() []float64 {
	return []float64{e.state[0], e.state[1], e.state[2], e.state[3]}
}
