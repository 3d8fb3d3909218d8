package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/san-kum/kinsens/internal/sensitivity"
)

type ExportData struct {
	RunMetadata
	Times       []float64                 `json:"times,omitempty"`
	Sensitivity [][]float64               `json:"sensitivity,omitempty"`
	States      []sensitivity.Observation `json:"states,omitempty"`
}

// Export gathers a stored run into a single document. Matrix and trajectory
// are included when present.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	data := &ExportData{RunMetadata: *meta}

	if !meta.Streamed {
		m, times, _, err := s.LoadMatrix(runID)
		if err != nil {
			return nil, err
		}
		data.Times = times
		data.Sensitivity = m.Rows()
	}

	if tr, err := s.LoadTrajectory(runID); err == nil {
		if data.Times == nil {
			data.Times = tr.Times
		}
		data.States = tr.States
	}
	return data, nil
}

func ExportJSON(w io.Writer, data *ExportData) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ExportRankingCSV writes one line per ranked reaction.
func ExportRankingCSV(w io.Writer, ranked sensitivity.RankedList) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"rank", "index", "reaction", "score"}); err != nil {
		return err
	}
	for i, s := range ranked {
		row := []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(s.Index),
			s.Name,
			strconv.FormatFloat(s.Score, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
