package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reuseworks/volsched-api/internal/models"
	"github.com/reuseworks/volsched-api/pkg/config"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
)

type conflictRepository interface {
	ListRange(ctx context.Context, from, to time.Time) ([]models.Appointment, error)
	ListWindow(ctx context.Context, stationID string, from, to time.Time) ([]models.Appointment, error)
}

type conflictCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ConflictService runs the read-only overlap scan across appointments.
// It reports conflicting pairs; it never rejects or mutates anything.
type ConflictService struct {
	repo    conflictRepository
	cache   conflictCache
	metrics *MetricsService
	logger  *zap.Logger
	cfg     config.ConflictsConfig
}

// NewConflictService constructs a ConflictService. The cache is
// optional; a nil cache disables it regardless of configuration.
func NewConflictService(repo conflictRepository, cache conflictCache, logger *zap.Logger, cfg config.ConflictsConfig) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{repo: repo, cache: cache, logger: logger, cfg: cfg}
}

// WithMetrics attaches cache instrumentation.
func (s *ConflictService) WithMetrics(metrics *MetricsService) *ConflictService {
	s.metrics = metrics
	return s
}

// Scan finds every pair of appointments at the same station whose
// intervals intersect within the window. Appointments at different
// stations never conflict with each other. Pairs are reported once,
// ordered by start time within each station.
func (s *ConflictService) Scan(ctx context.Context, from, to time.Time) ([]models.ConflictPair, error) {
	if !from.Before(to) {
		return nil, appErrors.ErrInvalidTimeRange
	}

	key := conflictCacheKey("", from, to)
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	appointments, err := s.repo.ListRange(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan appointments")
	}

	pairs := pairConflicts(appointments)
	s.toCache(ctx, key, pairs)
	return pairs, nil
}

// ScanStation is Scan restricted to a single station.
func (s *ConflictService) ScanStation(ctx context.Context, stationID string, from, to time.Time) ([]models.ConflictPair, error) {
	if !from.Before(to) {
		return nil, appErrors.ErrInvalidTimeRange
	}

	key := conflictCacheKey(stationID, from, to)
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	appointments, err := s.repo.ListWindow(ctx, stationID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan station appointments")
	}

	pairs := pairConflicts(appointments)
	s.toCache(ctx, key, pairs)
	return pairs, nil
}

// Invalidate drops all cached scan results. Called after any write
// that changes an appointment's interval or station.
func (s *ConflictService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "conflicts:*"); err != nil {
		s.logger.Warn("conflict cache invalidation failed", zap.Error(err))
	}
}

// pairConflicts walks appointments grouped by station and emits each
// overlapping pair exactly once. Input ordered by station then start
// time keeps the inner loop short: once a candidate starts at or
// after the anchor's end, no later candidate can overlap it.
func pairConflicts(appointments []models.Appointment) []models.ConflictPair {
	pairs := []models.ConflictPair{}
	for i := range appointments {
		for j := i + 1; j < len(appointments); j++ {
			if appointments[j].StationID != appointments[i].StationID {
				break
			}
			if !appointments[j].StartTime.Before(appointments[i].EndTime) {
				break
			}
			if appointments[i].Overlaps(&appointments[j]) {
				pairs = append(pairs, models.ConflictPair{
					StationID: appointments[i].StationID,
					First:     appointments[i],
					Second:    appointments[j],
				})
			}
		}
	}
	return pairs
}

func conflictCacheKey(stationID string, from, to time.Time) string {
	if stationID == "" {
		stationID = "all"
	}
	return fmt.Sprintf("conflicts:%s:%d:%d", stationID, from.Unix(), to.Unix())
}

func (s *ConflictService) fromCache(ctx context.Context, key string) ([]models.ConflictPair, bool) {
	if s.cache == nil || !s.cfg.CacheEnabled {
		return nil, false
	}
	start := time.Now()
	var pairs []models.ConflictPair
	err := s.cache.Get(ctx, key, &pairs)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if err != appErrors.ErrCacheMiss {
			s.logger.Warn("conflict cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return pairs, true
}

func (s *ConflictService) toCache(ctx context.Context, key string, pairs []models.ConflictPair) {
	if s.cache == nil || !s.cfg.CacheEnabled {
		return
	}
	if err := s.cache.Set(ctx, key, pairs, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("conflict cache write failed", zap.String("key", key), zap.Error(err))
	}
}
