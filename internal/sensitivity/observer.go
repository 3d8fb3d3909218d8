package sensitivity

import "github.com/sirupsen/logrus"

// LogObserver writes one progress line per grid instant: time, temperature,
// pressure, internal energy and the last coefficient read.
type LogObserver struct {
	Level logrus.Level
}

func NewLogObserver() *LogObserver {
	return &LogObserver{Level: logrus.DebugLevel}
}

func (l *LogObserver) OnStep(rec StepRecord) {
	logrus.StandardLogger().Logf(l.Level, "%10.3e %10.3f %10.3f %14.6e %.6e",
		rec.Time, rec.State.Temperature, rec.State.Pressure, rec.State.InternalEnergy, rec.Last)
}

// Trajectory records the observed state at every grid instant.
type Trajectory struct {
	Times  []float64
	States []Observation
}

func NewTrajectory(capacity int) *Trajectory {
	return &Trajectory{
		Times:  make([]float64, 0, capacity),
		States: make([]Observation, 0, capacity),
	}
}

func (tr *Trajectory) OnStep(rec StepRecord) {
	tr.Times = append(tr.Times, rec.Time)
	tr.States = append(tr.States, rec.State)
}

// Temperatures returns the temperature history.
func (tr *Trajectory) Temperatures() []float64 {
	out := make([]float64, len(tr.States))
	for i, s := range tr.States {
		out[i] = s.Temperature
	}
	return out
}
