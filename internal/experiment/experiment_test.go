package experiment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/kinsens/internal/config"
	"github.com/san-kum/kinsens/internal/kinetics"
	"github.com/san-kum/kinsens/internal/report"
	"github.com/san-kum/kinsens/internal/sensitivity"
	"github.com/san-kum/kinsens/internal/storage"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func quickConfig() *config.Config {
	cfg := config.GetPreset("quick")
	cfg.Grid.Duration = 1e-4
	return cfg
}

func runQuick(t *testing.T, cfg *config.Config) (*Experiment, *Result) {
	t.Helper()
	exp := New(cfg, NewRegistry())
	require.NoError(t, exp.Setup())
	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	return exp, res
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	assert.Equal(t, []string{"rk4", "rk45", "ros2"}, reg.ListSteppers())
	assert.Contains(t, reg.ListMechanisms(), "methane-global")

	_, err := reg.GetStepper("euler")
	assert.Error(t, err)

	mech, err := reg.GetMechanism("methane-2step")
	require.NoError(t, err)
	assert.Len(t, mech.Reactions, 3)

	_, err = reg.GetMechanism("no-such-mechanism")
	assert.ErrorIs(t, err, kinetics.ErrUnknownMechanism)
}

func TestRegistryMechanismFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h2.yaml")
	doc := `name: h2
cp: 30
species:
  - {name: H2, molar_mass: 2.016}
  - {name: O2, molar_mass: 31.998}
  - {name: H2O, molar_mass: 18.015}
reactions:
  - {equation: "2 H2 + O2 => 2 H2O", A: 1.0e10, Ea: 20000, dH: -4.8e5}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	mech, err := NewRegistry().GetMechanism(path)
	require.NoError(t, err)
	assert.Equal(t, "h2", mech.Name)
}

func TestExperimentRun(t *testing.T) {
	_, res := runQuick(t, quickConfig())

	rows, cols := res.Matrix.Dims()
	assert.Equal(t, 10, rows)
	assert.Equal(t, 3, cols)
	assert.Len(t, res.Reactions, 3)
	assert.Len(t, res.Ranking, 3)
	assert.Len(t, res.Top, 3)
	assert.Len(t, res.Trajectory.Times, 10)
	assert.Greater(t, res.Steps, 0)

	for i := 1; i < len(res.Ranking); i++ {
		assert.GreaterOrEqual(t, res.Ranking[i-1].Score, res.Ranking[i].Score)
	}
	temps := res.Trajectory.Temperatures()
	assert.Greater(t, temps[len(temps)-1], 1500.0)
}

// The full default run crosses ignition and the stiff post-flame region.
func TestDefaultConfigStepBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("full default run")
	}
	cfg := config.DefaultConfig()
	require.Equal(t, "ros2", cfg.Stepper)

	_, res := runQuick(t, cfg)

	rows, cols := res.Matrix.Dims()
	assert.Equal(t, 400, rows)
	assert.Equal(t, 8, cols)
	assert.Less(t, res.Steps, 100000, "default grid needs a bounded number of solver steps")
}

func TestExperimentStreamingMatchesMatrix(t *testing.T) {
	_, full := runQuick(t, quickConfig())

	cfg := quickConfig()
	cfg.Stream = true
	_, streamed := runQuick(t, cfg)

	assert.Nil(t, streamed.Matrix)
	assert.Equal(t, full.Scores, streamed.Scores)
	assert.Equal(t, full.Ranking, streamed.Ranking)
}

func TestExperimentTopClamp(t *testing.T) {
	cfg := quickConfig()
	cfg.TopN = 1
	_, res := runQuick(t, cfg)
	require.Len(t, res.Top, 1)
	assert.Equal(t, res.Ranking[0], res.Top[0])

	cfg = quickConfig()
	cfg.TopN = 50
	_, res = runQuick(t, cfg)
	assert.Len(t, res.Top, 3)
}

func TestExperimentConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		target error
	}{
		{"too many reactions", func(c *config.Config) { c.Reactions = 4 }, sensitivity.ErrReactionCountMismatch},
		{"unknown mechanism", func(c *config.Config) { c.Mechanism = "gri30" }, kinetics.ErrUnknownMechanism},
		{"unknown species", func(c *config.Config) { c.Composition = map[string]float64{"AR": 1} }, kinetics.ErrUnknownSpecies},
		{"bad grid", func(c *config.Config) { c.Grid.Duration = 1.5e-5 }, sensitivity.ErrInvalidGrid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := quickConfig()
			tt.mutate(cfg)
			err := New(cfg, NewRegistry()).Setup()
			require.Error(t, err)
			assert.True(t, sensitivity.IsConfigError(err))
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestExperimentObservableOutOfRange(t *testing.T) {
	cfg := quickConfig()
	cfg.Observable = 99
	exp := New(cfg, NewRegistry())
	require.NoError(t, exp.Setup())

	_, err := exp.Run(context.Background())
	assert.ErrorIs(t, err, sensitivity.ErrInvalidObservable)
}

func TestExperimentRunBeforeSetup(t *testing.T) {
	_, err := New(quickConfig(), NewRegistry()).Run(context.Background())
	assert.Error(t, err)
}

func TestExperimentReportFailureKeepsRanking(t *testing.T) {
	exp, res := runQuick(t, quickConfig())
	before := append(sensitivity.RankedList(nil), res.Ranking...)

	var rendered report.Chart
	err := exp.Report(report.MultiSink{
		report.SinkFunc(func(c report.Chart) error { rendered = c; return nil }),
		report.SinkFunc(func(report.Chart) error { return errors.New("no display") }),
	}, res)

	assert.ErrorIs(t, err, report.ErrRender)
	assert.Equal(t, before, res.Ranking)
	assert.Equal(t, "Sensitivity Analysis on Temperature", rendered.Labels.Title)
	assert.Equal(t, res.Top[0].Name, rendered.Bars[len(rendered.Bars)-1].Label)

	runID, err := exp.Save(storage.New(t.TempDir()), res)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
}

func TestExperimentCustomObserver(t *testing.T) {
	steps := 0
	exp := New(quickConfig(), NewRegistry())
	exp.AddObserver(sensitivity.ObserverFunc(func(sensitivity.StepRecord) { steps++ }))
	require.NoError(t, exp.Setup())

	_, err := exp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, steps)
}

func TestObservableName(t *testing.T) {
	cfg := quickConfig()
	cfg.Observable = 2
	exp := New(cfg, NewRegistry())
	require.NoError(t, exp.Setup())
	assert.Equal(t, "CH4", exp.ObservableName())
}

func TestObservableNameBeforeSetup(t *testing.T) {
	cfg := quickConfig()
	cfg.Observable = 7
	assert.Equal(t, "CO2", New(cfg, NewRegistry()).ObservableName())

	cfg.Observable = 40
	assert.Equal(t, "observable 40", New(cfg, NewRegistry()).ObservableName())
}

func TestBatchMatchesSequential(t *testing.T) {
	lean := quickConfig()
	lean.Composition = map[string]float64{"CH4": 0.5, "O2": 2, "N2": 7.52}
	cfgs := []*config.Config{quickConfig(), lean}

	results, err := NewBatch(NewRegistry(), 2).Run(context.Background(), cfgs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, cfg := range cfgs {
		_, want := runQuick(t, cfg)
		assert.Equal(t, want.Ranking, results[i].Ranking, "run %d", i)
	}
}

func TestBatchReportsFailure(t *testing.T) {
	bad := quickConfig()
	bad.Mechanism = "missing"

	_, err := NewBatch(NewRegistry(), 0).Run(context.Background(), []*config.Config{quickConfig(), bad})
	assert.ErrorIs(t, err, kinetics.ErrUnknownMechanism)
}
