package analytics

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/finrecords_backend/cache"
	"github.com/mmdatafocus/finrecords_backend/models"
	"github.com/mmdatafocus/finrecords_backend/utils"
)

const defaultTTLSeconds = 1800

// CompanyStore is the tenant-existence check, consulted exactly once per
// façade call.
type CompanyStore interface {
	CompanyExists(ctx context.Context, companyId string) (bool, error)
}

// Service binds the engine's views to per-tenant cache keys. Reads go
// cache-aside through the store; invalidation and refresh are used by the
// mutation trigger and the queue workers. The only error a caller ever sees
// is tenant-not-found: cache faults degrade to direct computation.
type Service struct {
	engine    *Engine
	cache     *cache.Store
	companies CompanyStore
	logger    *logrus.Logger
	ttl       time.Duration
	now       func() time.Time
}

func NewService(engine *Engine, store *cache.Store, companies CompanyStore, logger *logrus.Logger) *Service {
	ttl := defaultTTLSeconds
	if v := os.Getenv("ANALYTICS_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return &Service{
		engine:    engine,
		cache:     store,
		companies: companies,
		logger:    logger,
		ttl:       time.Duration(ttl) * time.Second,
		now:       time.Now,
	}
}

// Key scheme: analytics:{companyId}:{view}. The trailing-colon pattern used
// for invalidation cannot over-match a tenant whose id is a prefix of
// another ("abc" never matches "abc123:*").
func analyticsKey(companyId string, view models.AnalyticsViewType) string {
	return "analytics:" + companyId + ":" + string(view)
}

func analyticsPattern(companyId string) string {
	return "analytics:" + companyId + ":*"
}

func (s *Service) validateCompany(ctx context.Context, companyId string) error {
	ok, err := s.companies.CompanyExists(ctx, companyId)
	if err != nil {
		return err
	}
	if !ok {
		return utils.NewNotFoundError("company not found")
	}
	return nil
}

func getView[T any](ctx context.Context, s *Service, companyId string, view models.AnalyticsViewType, compute func(context.Context) (T, error)) (T, error) {
	entry, err := cache.WithCache(ctx, s.cache, analyticsKey(companyId, view), s.ttl,
		func(ctx context.Context) (CacheEntry[T], error) {
			data, err := compute(ctx)
			if err != nil {
				return CacheEntry[T]{}, err
			}
			return CacheEntry[T]{Type: string(view), Data: data, CachedAt: s.now()}, nil
		})
	if err != nil {
		var zero T
		return zero, err
	}
	return entry.Data, nil
}

func (s *Service) GetSummary(ctx context.Context, companyId string) (*Summary, error) {
	if err := s.validateCompany(ctx, companyId); err != nil {
		return nil, err
	}
	return getView(ctx, s, companyId, models.ViewSummary, func(ctx context.Context) (*Summary, error) {
		return s.engine.Summary(ctx, companyId)
	})
}

func (s *Service) GetMonthlyData(ctx context.Context, companyId string) ([]MonthlyBucket, error) {
	if err := s.validateCompany(ctx, companyId); err != nil {
		return nil, err
	}
	return getView(ctx, s, companyId, models.ViewMonthly, func(ctx context.Context) ([]MonthlyBucket, error) {
		return s.engine.MonthlyData(ctx, companyId)
	})
}

func (s *Service) GetTrends(ctx context.Context, companyId string) ([]TrendPoint, error) {
	if err := s.validateCompany(ctx, companyId); err != nil {
		return nil, err
	}
	return getView(ctx, s, companyId, models.ViewTrends, func(ctx context.Context) ([]TrendPoint, error) {
		return s.engine.Trends(ctx, companyId)
	})
}

func (s *Service) GetDistribution(ctx context.Context, companyId string) (*Distribution, error) {
	if err := s.validateCompany(ctx, companyId); err != nil {
		return nil, err
	}
	return getView(ctx, s, companyId, models.ViewDistribution, func(ctx context.Context) (*Distribution, error) {
		return s.engine.Distribution(ctx, companyId)
	})
}

func (s *Service) GetHighestRecords(ctx context.Context, companyId string) (*HighestRecords, error) {
	if err := s.validateCompany(ctx, companyId); err != nil {
		return nil, err
	}
	return getView(ctx, s, companyId, models.ViewHighest, func(ctx context.Context) (*HighestRecords, error) {
		return s.engine.HighestRecords(ctx, companyId)
	})
}

// GetView dispatches by view type for callers that receive the type as data
// (HTTP handlers, workers).
func (s *Service) GetView(ctx context.Context, companyId string, view models.AnalyticsViewType) (any, error) {
	switch view {
	case models.ViewSummary:
		return s.GetSummary(ctx, companyId)
	case models.ViewMonthly:
		return s.GetMonthlyData(ctx, companyId)
	case models.ViewTrends:
		return s.GetTrends(ctx, companyId)
	case models.ViewDistribution:
		return s.GetDistribution(ctx, companyId)
	case models.ViewHighest:
		return s.GetHighestRecords(ctx, companyId)
	default:
		return nil, fmt.Errorf("invalid analytics view type: %s", view)
	}
}

type ViewCacheStatus struct {
	Exists   bool       `json:"exists"`
	CachedAt *time.Time `json:"cachedAt,omitempty"`
}

type CacheStatus struct {
	CompanyId      string                     `json:"companyId"`
	CacheStatus    string                     `json:"cacheStatus"`
	AvailableTypes []string                   `json:"availableTypes"`
	Views          map[string]ViewCacheStatus `json:"views"`
}

// GetCacheStatus reports, per view, whether a cache entry exists and when it
// was written. Aggregate status is "active" when any entry exists.
func (s *Service) GetCacheStatus(ctx context.Context, companyId string) (*CacheStatus, error) {
	if err := s.validateCompany(ctx, companyId); err != nil {
		return nil, err
	}

	status := &CacheStatus{
		CompanyId:      companyId,
		CacheStatus:    "inactive",
		AvailableTypes: []string{},
		Views:          map[string]ViewCacheStatus{},
	}
	for _, view := range models.AnalyticsViewTypes() {
		var entry struct {
			CachedAt time.Time `json:"cachedAt"`
		}
		if s.cache.Get(ctx, analyticsKey(companyId, view), &entry) {
			cachedAt := entry.CachedAt
			status.Views[string(view)] = ViewCacheStatus{Exists: true, CachedAt: &cachedAt}
			status.AvailableTypes = append(status.AvailableTypes, string(view))
			status.CacheStatus = "active"
		} else {
			status.Views[string(view)] = ViewCacheStatus{Exists: false}
		}
	}
	return status, nil
}

// Invalidate synchronously deletes every cached view for the tenant and
// returns the number of entries removed. Callers that follow up with a
// recompute job must enqueue only after this returns.
func (s *Service) Invalidate(ctx context.Context, companyId string) int {
	return s.cache.DeletePattern(ctx, analyticsPattern(companyId))
}

// RefreshView drops and recomputes a single view. Used by workers.
func (s *Service) RefreshView(ctx context.Context, companyId string, view models.AnalyticsViewType) error {
	if err := s.validateCompany(ctx, companyId); err != nil {
		return err
	}
	s.cache.Delete(ctx, analyticsKey(companyId, view))
	_, err := s.GetView(ctx, companyId, view)
	return err
}

// RefreshAll drops every view for the tenant and recomputes the five views
// in parallel. Used by workers processing "all" jobs.
func (s *Service) RefreshAll(ctx context.Context, companyId string) error {
	if err := s.validateCompany(ctx, companyId); err != nil {
		return err
	}
	s.Invalidate(ctx, companyId)

	views := models.AnalyticsViewTypes()
	var wg sync.WaitGroup
	errs := make([]error, len(views))
	for i, view := range views {
		wg.Add(1)
		go func(i int, view models.AnalyticsViewType) {
			defer wg.Done()
			_, errs[i] = s.GetView(ctx, companyId, view)
		}(i, view)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
