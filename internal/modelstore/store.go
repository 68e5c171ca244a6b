package modelstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/npbw/visitor-pipeline/internal/features"
	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/storage"
)

// statsFile holds the standardization stats of a training run, saved
// next to its model artifacts.
const statsFile = "standardization_stats.json"

// NewRunID mints the identifier a training run's artifacts are grouped
// under.
func NewRunID() string {
	return uuid.NewString()
}

// Run is one training run: regressors per target plus the
// standardization stats the inference features must reuse.
type Run struct {
	ID     string
	Models map[string]Regressor
	Stats  map[string]features.Stats
}

// Store persists and loads model runs through the storage contract.
// Loaded runs are cached by run ID; the cache entry is replaced as soon
// as a newer run appears in storage.
type Store struct {
	storage   storage.Store
	folder    string
	algorithm string
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	cached *Run
}

// New creates a model store. folder is the logical storage prefix the
// run directories live under; algorithm is the artifact name prefix.
func New(st storage.Store, folder, algorithm string, metrics *observability.Metrics, logger *slog.Logger) *Store {
	return &Store{
		storage:   st,
		folder:    folder,
		algorithm: algorithm,
		metrics:   metrics,
		logger:    logger,
	}
}

// artifactName renders the <algorithm>_<target> file name of one model.
func (s *Store) artifactName(target string) string {
	return s.ArtifactBase(target) + ".json"
}

// ArtifactBase is the extension-free <algorithm>_<target> name shared by
// a model artifact and the prediction table derived from it.
func (s *Store) ArtifactBase(target string) string {
	return s.algorithm + "_" + target
}

// SaveRun writes all models of a run plus its standardization stats.
func (s *Store) SaveRun(ctx context.Context, runID string, models map[string]*LinearRegressor, stats map[string]features.Stats) error {
	folder := s.folder + "/" + runID
	for target, model := range models {
		data, err := marshalRegressor(model)
		if err != nil {
			return fmt.Errorf("save run %s: encode %q: %w", runID, target, err)
		}
		if err := s.storage.WriteBytes(ctx, data, s.artifactName(target), folder); err != nil {
			return fmt.Errorf("save run %s: %w", runID, err)
		}
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("save run %s: encode stats: %w", runID, err)
	}
	if err := s.storage.WriteBytes(ctx, data, statsFile, folder); err != nil {
		return fmt.Errorf("save run %s: %w", runID, err)
	}
	s.logger.Info("model run saved", "run_id", runID, "models", len(models))
	return nil
}

// LatestRunID returns the most recently modified run directory, or an
// error when no run has been saved yet.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	entries, err := s.storage.List(ctx, s.folder)
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("latest run: no runs under %q", s.folder)
	}
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].ModTime.After(entries[b].ModTime)
	})
	return entries[0].Name, nil
}

// LoadRun loads all model artifacts of a run, serving repeated requests
// for the same run from the cache.
func (s *Store) LoadRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.Lock()
	if s.cached != nil && s.cached.ID == runID {
		run := s.cached
		s.mu.Unlock()
		s.metrics.ModelCache.WithLabelValues("hit").Inc()
		return run, nil
	}
	s.mu.Unlock()
	s.metrics.ModelCache.WithLabelValues("miss").Inc()

	folder := s.folder + "/" + runID
	entries, err := s.storage.List(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	run := &Run{ID: runID, Models: make(map[string]Regressor)}
	prefix := s.algorithm + "_"
	for _, e := range entries {
		if e.Name == statsFile {
			data, err := s.storage.ReadBytes(ctx, e.Name, folder)
			if err != nil {
				return nil, fmt.Errorf("load run %s: %w", runID, err)
			}
			if err := json.Unmarshal(data, &run.Stats); err != nil {
				return nil, fmt.Errorf("load run %s: decode stats: %w", runID, err)
			}
			continue
		}
		if !strings.HasPrefix(e.Name, prefix) || !strings.HasSuffix(e.Name, ".json") {
			continue
		}
		data, err := s.storage.ReadBytes(ctx, e.Name, folder)
		if err != nil {
			return nil, fmt.Errorf("load run %s: %w", runID, err)
		}
		model, err := unmarshalRegressor(data)
		if err != nil {
			return nil, fmt.Errorf("load run %s: %s: %w", runID, e.Name, err)
		}
		target := strings.TrimSuffix(strings.TrimPrefix(e.Name, prefix), ".json")
		run.Models[target] = model
	}
	if len(run.Models) == 0 {
		return nil, fmt.Errorf("load run %s: no %s artifacts found", runID, s.algorithm)
	}
	if run.Stats == nil {
		return nil, fmt.Errorf("load run %s: missing %s", runID, statsFile)
	}

	s.mu.Lock()
	s.cached = run
	s.mu.Unlock()
	s.logger.Info("model run loaded", "run_id", runID, "models", len(run.Models))
	return run, nil
}

// LoadLatest resolves the newest run and loads it. A cached older run
// is discarded the moment a newer one exists.
func (s *Store) LoadLatest(ctx context.Context) (*Run, error) {
	runID, err := s.LatestRunID(ctx)
	if err != nil {
		return nil, err
	}
	return s.LoadRun(ctx, runID)
}
