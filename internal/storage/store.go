package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/kinsens/internal/config"
	"github.com/san-kum/kinsens/internal/sensitivity"
)

const (
	metadataFile    = "metadata.json"
	sensitivityFile = "sensitivity.csv"
	trajectoryFile  = "trajectory.csv"
)

var ErrNoMatrix = errors.New("storage: run has no stored matrix")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Config    *config.Config         `json:"config"`
	Reactions []string               `json:"reactions"`
	Ranking   sensitivity.RankedList `json:"ranking"`
	Steps     int                    `json:"steps"`
	Elapsed   time.Duration          `json:"elapsed_ns"`
	Streamed  bool                   `json:"streamed"`
}

// Run is everything a finished analysis produces. Matrix is nil for
// streamed runs.
type Run struct {
	Config     *config.Config
	Reactions  []string
	Ranking    sensitivity.RankedList
	Matrix     *sensitivity.Matrix
	Trajectory *sensitivity.Trajectory
	Elapsed    time.Duration
}

func (s *Store) Save(run *Run) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	runID, runDir, err := s.newRunDir(run.Config.Mechanism)
	if err != nil {
		return "", err
	}

	steps := 0
	if run.Trajectory != nil {
		steps = len(run.Trajectory.Times)
	}
	meta := RunMetadata{
		ID:        runID,
		Timestamp: time.Now(),
		Config:    run.Config,
		Reactions: run.Reactions,
		Ranking:   run.Ranking,
		Steps:     steps,
		Elapsed:   run.Elapsed,
		Streamed:  run.Matrix == nil,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	if run.Matrix != nil {
		var times []float64
		if run.Trajectory != nil {
			times = run.Trajectory.Times
		}
		if err := writeMatrix(filepath.Join(runDir, sensitivityFile), run.Matrix, times, run.Reactions); err != nil {
			return "", err
		}
	}
	if run.Trajectory != nil {
		if err := writeTrajectory(filepath.Join(runDir, trajectoryFile), run.Trajectory); err != nil {
			return "", err
		}
	}

	return runID, nil
}

func (s *Store) newRunDir(prefix string) (string, string, error) {
	base := fmt.Sprintf("%s_%d", filepath.Base(prefix), time.Now().Unix())
	for n := 0; ; n++ {
		runID := base
		if n > 0 {
			runID = fmt.Sprintf("%s-%d", base, n)
		}
		runDir := filepath.Join(s.baseDir, runID)
		err := os.Mkdir(runDir, 0755)
		if err == nil {
			return runID, runDir, nil
		}
		if !os.IsExist(err) {
			return "", "", err
		}
	}
}

// List returns stored runs, oldest first. Unreadable entries are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadMatrix reads the stored sensitivity matrix with its grid times and
// reaction names.
func (s *Store) LoadMatrix(runID string) (*sensitivity.Matrix, []float64, []string, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, sensitivityFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrNoMatrix, runID)
		}
		return nil, nil, nil, err
	}
	if len(records) < 2 || len(records[0]) < 2 {
		return nil, nil, nil, fmt.Errorf("%w: %s is empty", ErrNoMatrix, runID)
	}

	names := records[0][1:]
	times := make([]float64, 0, len(records)-1)
	rows := make([][]float64, 0, len(records)-1)
	for i, record := range records[1:] {
		values, err := parseFloats(record)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s line %d: %w", sensitivityFile, i+2, err)
		}
		times = append(times, values[0])
		rows = append(rows, values[1:])
	}

	m, err := sensitivity.NewMatrix(rows)
	if err != nil {
		return nil, nil, nil, err
	}
	return m, times, names, nil
}

func (s *Store) LoadTrajectory(runID string) (*sensitivity.Trajectory, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return sensitivity.NewTrajectory(0), nil
	}

	tr := sensitivity.NewTrajectory(len(records) - 1)
	for i, record := range records[1:] {
		values, err := parseFloats(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", trajectoryFile, i+2, err)
		}
		if len(values) != 4 {
			return nil, fmt.Errorf("%s line %d: want 4 fields, got %d", trajectoryFile, i+2, len(values))
		}
		tr.OnStep(sensitivity.StepRecord{
			Step: i,
			Time: values[0],
			State: sensitivity.Observation{
				Temperature:    values[1],
				Pressure:       values[2],
				InternalEnergy: values[3],
			},
		})
	}
	return tr, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeMatrix(path string, m *sensitivity.Matrix, times []float64, names []string) error {
	rows, cols := m.Dims()
	if len(names) != cols {
		return fmt.Errorf("%w: %d columns, %d names", sensitivity.ErrLengthMismatch, cols, len(names))
	}

	return writeCSV(path, func(w *csv.Writer) error {
		if err := w.Write(append([]string{"time"}, names...)); err != nil {
			return err
		}
		for t := 0; t < rows; t++ {
			ts := float64(t)
			if t < len(times) {
				ts = times[t]
			}
			if err := w.Write(formatFloats(append([]float64{ts}, m.Row(t)...))); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeTrajectory(path string, tr *sensitivity.Trajectory) error {
	return writeCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"time", "temperature", "pressure", "internal_energy"}); err != nil {
			return err
		}
		for i, st := range tr.States {
			row := formatFloats([]float64{tr.Times[i], st.Temperature, st.Pressure, st.InternalEnergy})
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSV(path string, fill func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := fill(w); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func formatFloats(values []float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return out
}

func parseFloats(record []string) ([]float64, error) {
	out := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
