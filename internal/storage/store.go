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

	"github.com/samber/lo"
	"github.com/san-kum/regime/internal/dispatch"
	"github.com/san-kum/regime/internal/grid"
)

const (
	metadataFile = "metadata.json"
	recordsFile  = "responses.csv"
)

var ErrNoRecords = errors.New("storage: run has no records")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata summarizes one sweep. Rasters are never stored.
type RunMetadata struct {
	ID        string             `json:"id"`
	Evaluator string             `json:"evaluator"`
	Preset    string             `json:"preset,omitempty"`
	Sweep     string             `json:"sweep"`
	Timestamp time.Time          `json:"timestamp"`
	Grid      grid.Params        `json:"grid"`
	Requests  int                `json:"requests"`
	Accepted  int                `json:"accepted"`
	Dropped   int                `json:"dropped"`
	Failed    int                `json:"failed"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Record is one settled reply.
type Record struct {
	Seq       uint64  `json:"seq"`
	Value     float64 `json:"value"` // the swept parameter
	Outcome   string  `json:"outcome"`
	ElapsedMs float64 `json:"elapsed_ms"`
	Counts    [4]int  `json:"counts"` // indexed by grid.Code
}

// NewRecord captures an observation. It must be called inside the
// observer callback while the raster is still valid.
func NewRecord(obs dispatch.Observation, value float64) Record {
	rec := Record{
		Seq:       obs.Seq,
		Value:     value,
		Outcome:   obs.Outcome.String(),
		ElapsedMs: float64(obs.Elapsed.Nanoseconds()) / 1e6,
	}
	if obs.Err != nil && obs.Outcome == dispatch.Accepted {
		rec.Outcome = "failed"
	}
	for code, n := range grid.Histogram(obs.Raster) {
		if int(code) < len(rec.Counts) {
			rec.Counts[code] = n
		}
	}
	return rec
}

var recordHeader = []string{"seq", "value", "outcome", "elapsed_ms", "gas", "radiation", "degeneracy", "mixed"}

// Save writes meta and records under meta.ID, generating an ID when empty.
// Outcome totals and elapsed metrics are derived from records.
func (s *Store) Save(meta RunMetadata, records []Record) (string, error) {
	if meta.ID == "" {
		meta.ID = fmt.Sprintf("%s_%d", meta.Evaluator, time.Now().Unix())
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	summarize(&meta, records)

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, recordsFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(recordHeader); err != nil {
		return "", err
	}
	for _, r := range records {
		row := []string{
			strconv.FormatUint(r.Seq, 10),
			strconv.FormatFloat(r.Value, 'f', 6, 64),
			r.Outcome,
			strconv.FormatFloat(r.ElapsedMs, 'f', 6, 64),
		}
		for _, c := range r.Counts {
			row = append(row, strconv.Itoa(c))
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
}

func summarize(meta *RunMetadata, records []Record) {
	counts := lo.CountValuesBy(records, func(r Record) string { return r.Outcome })
	meta.Requests = len(records)
	meta.Accepted = counts["accepted"]
	meta.Dropped = counts["dropped"]
	meta.Failed = counts["failed"]

	if meta.Metrics == nil {
		meta.Metrics = make(map[string]float64)
	}
	if len(records) == 0 {
		return
	}
	elapsed := lo.Map(records, func(r Record, _ int) float64 { return r.ElapsedMs })
	meta.Metrics["elapsed_total_ms"] = lo.Sum(elapsed)
	meta.Metrics["elapsed_mean_ms"] = lo.Sum(elapsed) / float64(len(elapsed))
	meta.Metrics["elapsed_max_ms"] = lo.Max(elapsed)
}

// List returns stored runs, newest first.
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

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
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

// LoadRecords skips malformed rows.
func (s *Store) LoadRecords(runID string) ([]Record, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, recordsFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, ErrNoRecords
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(recordHeader) {
			continue
		}
		rec, err := parseRecord(row)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRecord(row []string) (Record, error) {
	var rec Record
	var err error

	if rec.Seq, err = strconv.ParseUint(row[0], 10, 64); err != nil {
		return rec, err
	}
	if rec.Value, err = strconv.ParseFloat(row[1], 64); err != nil {
		return rec, err
	}
	rec.Outcome = row[2]
	if rec.ElapsedMs, err = strconv.ParseFloat(row[3], 64); err != nil {
		return rec, err
	}
	for i := range rec.Counts {
		if rec.Counts[i], err = strconv.Atoi(row[4+i]); err != nil {
			return rec, err
		}
	}
	return rec, nil
}
