// Package storage keeps a history of benchmark and simulation runs on disk.
// Each run is a directory holding metadata.json and, for simulations,
// frames.csv with one row per frame.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/fluidhost/internal/bench"
)

const (
	KindBench = "bench"
	KindRun   = "run"
)

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
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	Timestamp time.Time          `json:"timestamp"`
	Engine    string             `json:"engine"`
	Workers   int                `json:"workers"`
	Particles int                `json:"particles,omitempty"`
	Seed      int64              `json:"seed,omitempty"`
	Checksum  float64            `json:"checksum,omitempty"`
	Error     string             `json:"error,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Bench     *bench.Result      `json:"bench,omitempty"`
}

// Frame is one row of a simulation run.
type Frame struct {
	Index  int
	StepMs float64
}

func (s *Store) newRunDir(kind string, now time.Time) (string, string, error) {
	runID := fmt.Sprintf("%s_%s_%s", kind, now.Format("20060102T150405"), uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", "", err
	}
	return runID, runDir, nil
}

func writeMetadata(dir string, meta RunMetadata) error {
	f, err := os.Create(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func (s *Store) SaveBench(res bench.Result) (string, error) {
	now := time.Now()
	runID, runDir, err := s.newRunDir(KindBench, now)
	if err != nil {
		return "", err
	}
	meta := RunMetadata{
		ID:        runID,
		Kind:      KindBench,
		Timestamp: now,
		Engine:    res.Engine,
		Workers:   res.Workers,
		Metrics: map[string]float64{
			"total_ms":       res.TotalElapsedMs,
			"mean_iter_ms":   res.MeanIterationMs(),
			"elements_per_s": res.Throughput(),
		},
		Bench: &res,
	}
	if err := writeMetadata(runDir, meta); err != nil {
		return "", err
	}
	return runID, nil
}

// SaveRun stores a simulation run. meta.ID, Kind and Timestamp are filled in.
func (s *Store) SaveRun(meta RunMetadata, frames []Frame) (string, error) {
	now := time.Now()
	runID, runDir, err := s.newRunDir(KindRun, now)
	if err != nil {
		return "", err
	}
	meta.ID, meta.Kind, meta.Timestamp = runID, KindRun, now
	if err := writeMetadata(runDir, meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "frames.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write([]string{"frame", "step_ms"}); err != nil {
		return "", err
	}
	for _, f := range frames {
		row := []string{strconv.Itoa(f.Index), strconv.FormatFloat(f.StepMs, 'f', 6, 64)}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return runID, nil
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
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadFrames(runID string) ([]Frame, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "frames.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []Frame{}, nil
	}

	frames := make([]Frame, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) < 2 {
			continue
		}
		idx, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}
		ms, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			continue
		}
		frames = append(frames, Frame{Index: idx, StepMs: ms})
	}
	return frames, nil
}
