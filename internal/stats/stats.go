// Package stats computes the admin dashboard figures.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/internal/cache"
	"github.com/aldoetobex/legal-aid-backend/internal/lifecycle"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

const cacheKey = "stats:overview"

// Overview is the dashboard payload.
type Overview struct {
	TotalCases          int64            `json:"total_cases"`
	ByStatus            map[string]int64 `json:"by_status"`
	ByType              map[string]int64 `json:"by_type"`
	ByPriority          map[string]int64 `json:"by_priority"`
	UnassignedOpen      int64            `json:"unassigned_open"`
	NeedingAttention    int64            `json:"needing_attention"`
	Solicitors          int64            `json:"solicitors"`
	VerifiedSolicitors  int64            `json:"verified_solicitors"`
	MeanSolicitorRating float64          `json:"mean_solicitor_rating"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

// Service serves Overview from the cache, recomputing on a miss. Concurrent
// misses share one computation.
type Service struct {
	db    *gorm.DB
	cache *cache.Client
	ttl   time.Duration
	now   func() time.Time
	log   *slog.Logger
	group singleflight.Group
}

func NewService(db *gorm.DB, c *cache.Client, ttl time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, cache: c, ttl: ttl, now: time.Now, log: log}
}

// Overview returns the cached figures or computes fresh ones.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	if raw := s.cache.Get(ctx, cacheKey); raw != nil {
		var o Overview
		if err := json.Unmarshal(raw, &o); err == nil {
			return &o, nil
		}
	}

	// Shared by every waiter; the first caller's cancellation does not reach it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(cacheKey, func() (any, error) {
		o, err := s.compute(shared)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(o); err == nil && s.ttl > 0 {
			s.cache.Set(shared, cacheKey, raw, s.ttl)
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	o, ok := v.(*Overview)
	if !ok {
		return nil, fmt.Errorf("unexpected stats result type %T", v)
	}
	return o, nil
}

type bucket struct {
	Label string
	Total int64
}

func (s *Service) groupCount(ctx context.Context, column string) (map[string]int64, error) {
	var rows []bucket
	if err := s.db.WithContext(ctx).Model(&models.Case{}).
		Select(column + " AS label, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count cases by %s: %w", column, err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Label] = r.Total
	}
	return out, nil
}

// compute runs the independent aggregate queries concurrently.
func (s *Service) compute(ctx context.Context) (*Overview, error) {
	now := s.now().UTC()
	o := &Overview{GeneratedAt: now}
	g, ctx := errgroup.WithContext(ctx)
	db := s.db.WithContext(ctx)

	g.Go(func() (err error) {
		o.ByStatus, err = s.groupCount(ctx, "status")
		return err
	})
	g.Go(func() (err error) {
		o.ByType, err = s.groupCount(ctx, "type")
		return err
	})
	g.Go(func() (err error) {
		o.ByPriority, err = s.groupCount(ctx, "priority")
		return err
	})
	g.Go(func() error {
		return db.Model(&models.Case{}).Count(&o.TotalCases).Error
	})
	g.Go(func() error {
		return db.Model(&models.Case{}).
			Where("assigned_solicitor_id IS NULL AND status <> ?", models.StatusClosed).
			Count(&o.UnassignedOpen).Error
	})
	g.Go(func() error {
		return db.Model(&models.Case{}).
			Where("status <> ?", models.StatusClosed).
			Where("(expected_response_by < ? OR (deadline IS NOT NULL AND deadline < ?))",
				now, now.Add(lifecycle.DeadlineWarning)).
			Count(&o.NeedingAttention).Error
	})
	g.Go(func() error {
		return db.Model(&models.SolicitorProfile{}).Count(&o.Solicitors).Error
	})
	g.Go(func() error {
		return db.Model(&models.SolicitorProfile{}).Where("verified = ?", true).Count(&o.VerifiedSolicitors).Error
	})
	g.Go(func() error {
		return db.Model(&models.SolicitorProfile{}).
			Where("average_rating > 0").
			Select("COALESCE(AVG(average_rating), 0)").
			Scan(&o.MeanSolicitorRating).Error
	})

	if err := g.Wait(); err != nil {
		s.log.ErrorContext(ctx, "compute stats", "error", err)
		return nil, err
	}
	return o, nil
}

// Invalidate drops the cached figures.
func (s *Service) Invalidate(ctx context.Context) {
	s.cache.Delete(ctx, cacheKey)
}
