package dashboard

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/guardpost/guardpost/internal/shared"
)

// Service builds dashboard snapshots.
type Service struct {
	repo   Repository
	cache  *Cache
	loc    *time.Location
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService wires the service. loc is the display timezone used for
// "today" and for bucketing logins per day.
func NewService(repo Repository, cache *Cache, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, loc: loc, logger: logger, now: time.Now}
}

// Snapshot returns the cached snapshot or computes it. Concurrent callers
// share one computation.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	key, err := s.cache.Key(ctx, "snapshot")
	if err != nil {
		s.logger.Warn("dashboard cache key", slog.Any("error", err))
		key = "guardpost:dashboard:snapshot"
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		return FetchJSON(ctx, s.cache, key, s.load)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Refresh drops cached payloads and recomputes the snapshot.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	if err := s.cache.Bump(ctx); err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(ctx)
}

func (s *Service) load(ctx context.Context) (Snapshot, error) {
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	windowStart := today.AddDate(0, 0, -(loginWindowDays - 1))

	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Totals, err = s.repo.Totals(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.DeniedToday, err = s.repo.CountOperationSince(ctx, shared.OpAccessDenied, today)
		return err
	})
	g.Go(func() (err error) {
		snap.UsersByRole, err = s.repo.UsersByRole(ctx)
		return err
	})
	g.Go(func() error {
		counts, err := s.repo.OperationPerDay(ctx, shared.OpLoginSuccess, windowStart, s.loc)
		if err != nil {
			return err
		}
		snap.LoginsPerDay = fillDays(counts, windowStart, loginWindowDays)
		return nil
	})
	g.Go(func() (err error) {
		snap.Operations, err = s.repo.Operations(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Recent, err = s.repo.Recent(ctx, recentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	snap.GeneratedAt = now.UTC()
	return snap, nil
}

// EntityData returns the drill-down for one register.
func (s *Service) EntityData(ctx context.Context, raw string) (EntityData, error) {
	entity, err := ParseEntity(raw)
	if err != nil {
		return EntityData{}, err
	}
	data := EntityData{Entity: entity, Chart: EntityChart{Type: "bar"}}
	if entity == EntityUsers {
		data.Chart.Type = "pie"
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.Grouped(ctx, entity)
		if err != nil {
			return err
		}
		data.Chart.Series = series(counts)
		return nil
	})
	g.Go(func() (err error) {
		data.Table, err = s.repo.Rows(ctx, entity, tableLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return EntityData{}, err
	}
	if data.Table == nil {
		data.Table = []map[string]any{}
	}
	return data, nil
}

// fillDays returns one Count per day starting at start, zero where counts
// has no entry. Labels are yyyy-mm-dd.
func fillDays(counts []Count, start time.Time, days int) []Count {
	byDay := make(map[string]int, len(counts))
	for _, c := range counts {
		byDay[c.Label] = c.Total
	}
	out := make([]Count, days)
	for i := range out {
		label := start.AddDate(0, 0, i).Format("2006-01-02")
		out[i] = Count{Label: label, Total: byDay[label]}
	}
	return out
}
