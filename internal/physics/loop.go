package physics

import (
	"log"

	"moto-sim/internal/config"
)

// Loop turns variable frame times into fixed physics steps. Time the
// simulation cannot catch up with is dropped instead of accumulating.
type Loop struct {
	stepSize  float64
	maxSteps  int
	threshold float64

	owed   float64
	resets uint64
}

// NewLoop returns a loop using the configured step size and catch-up limits.
func NewLoop(cfg config.SimulationConfig) *Loop {
	return &Loop{
		stepSize:  cfg.StepSize(),
		maxSteps:  cfg.MaxCatchUp,
		threshold: cfg.ResetThreshold,
	}
}

// StepSize returns the fixed step in seconds.
func (l *Loop) StepSize() float64 { return l.stepSize }

// Owed returns the simulated time still owed to the clock.
func (l *Loop) Owed() float64 { return l.owed }

// Resets returns how many times owed time was dropped.
func (l *Loop) Resets() uint64 { return l.resets }

// Advance adds frameDt of real time and runs step once per fixed step owed,
// at most maxSteps times. It returns the number of steps run.
func (l *Loop) Advance(frameDt float64, step func()) int {
	l.owed += frameDt
	n := 0
	for l.owed >= l.stepSize && n < l.maxSteps {
		step()
		l.owed -= l.stepSize
		n++
	}
	if l.owed > l.threshold {
		log.Printf("⚠️ Simulation fell behind by %.3fs, dropping owed time", l.owed)
		l.owed = 0
		l.resets++
	}
	return n
}
