package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/kinsens/internal/config"
	"github.com/san-kum/kinsens/internal/sensitivity"
)

func testRun(t *testing.T) *Run {
	t.Helper()

	m, err := sensitivity.NewMatrix([][]float64{
		{0.1, -0.5, 0.2},
		{0.3, 0.4, -0.9},
	})
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}

	names := []string{"CH4 + 2 O2 => CO2 + 2 H2O", "CO + 0.5 O2 => CO2", "N2 + O2 => 2 NO"}
	scores, err := sensitivity.Reduce(m, names)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}

	tr := sensitivity.NewTrajectory(2)
	tr.OnStep(sensitivity.StepRecord{Time: 5e-6, State: sensitivity.Observation{Temperature: 1500.5, Pressure: 101325, InternalEnergy: -1.2e5}})
	tr.OnStep(sensitivity.StepRecord{Time: 1e-5, State: sensitivity.Observation{Temperature: 1502.25, Pressure: 101325, InternalEnergy: -1.2e5}})

	return &Run{
		Config:     config.DefaultConfig(),
		Reactions:  names,
		Ranking:    sensitivity.Rank(scores),
		Matrix:     m,
		Trajectory: tr,
		Elapsed:    1500 * time.Millisecond,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	run := testRun(t)

	runID, err := st.Save(run)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(runID, "methane-global_") {
		t.Errorf("unexpected run id %q", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Config.Temperature != 1500 {
		t.Errorf("expected temperature 1500, got %g", meta.Config.Temperature)
	}
	if meta.Streamed {
		t.Error("expected a materialized run")
	}
	if meta.Steps != 2 {
		t.Errorf("expected 2 steps, got %d", meta.Steps)
	}
	if len(meta.Ranking) != 3 || meta.Ranking[0].Name != "N2 + O2 => 2 NO" {
		t.Errorf("ranking not preserved: %+v", meta.Ranking)
	}
	if meta.Elapsed != run.Elapsed {
		t.Errorf("expected elapsed %v, got %v", run.Elapsed, meta.Elapsed)
	}

	m, times, names, err := st.LoadMatrix(runID)
	if err != nil {
		t.Fatalf("load matrix failed: %v", err)
	}
	if !m.Equal(run.Matrix) {
		t.Errorf("matrix changed on round trip: %v", m.Rows())
	}
	if len(times) != 2 || times[0] != 5e-6 || times[1] != 1e-5 {
		t.Errorf("unexpected times %v", times)
	}
	if strings.Join(names, "|") != strings.Join(run.Reactions, "|") {
		t.Errorf("unexpected names %v", names)
	}

	tr, err := st.LoadTrajectory(runID)
	if err != nil {
		t.Fatalf("load trajectory failed: %v", err)
	}
	if got := tr.Temperatures(); len(got) != 2 || got[1] != 1502.25 {
		t.Errorf("unexpected temperatures %v", got)
	}
}

func TestStoreStreamedRun(t *testing.T) {
	st := New(t.TempDir())
	run := testRun(t)
	run.Matrix = nil

	runID, err := st.Save(run)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !meta.Streamed {
		t.Error("expected a streamed run")
	}

	if _, _, _, err := st.LoadMatrix(runID); !errors.Is(err, ErrNoMatrix) {
		t.Errorf("expected ErrNoMatrix, got %v", err)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected empty store, got %d runs", len(runs))
	}

	first, err := st.Save(testRun(t))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	second, err := st.Save(testRun(t))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if first == second {
		t.Fatalf("run ids collide: %s", first)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(t.TempDir() + "/does-not-exist")
	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestExport(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(testRun(t))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := st.Export(runID)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if len(data.Sensitivity) != 2 || len(data.States) != 2 {
		t.Fatalf("incomplete export: %d rows, %d states", len(data.Sensitivity), len(data.States))
	}

	var buf bytes.Buffer
	if err := ExportJSON(&buf, data); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	for _, key := range []string{"id", "config", "ranking", "times", "sensitivity", "states"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}

func TestExportRankingCSV(t *testing.T) {
	ranked := sensitivity.RankedList{
		{Index: 2, Name: "N2 + O2 => 2 NO", Score: 0.9},
		{Index: 0, Name: "CO + 0.5 O2 => CO2", Score: 0.3},
	}

	var buf bytes.Buffer
	if err := ExportRankingCSV(&buf, ranked); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[1] != "1,2,N2 + O2 => 2 NO,0.9" {
		t.Errorf("unexpected first row %q", lines[1])
	}
}
