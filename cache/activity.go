package cache

import (
	"context"
	"time"
)

const (
	activeCompaniesKey = "active_companies"

	// A company counts as active if anyone logged in within this window.
	activeWindow = 24 * time.Hour

	// The whole set expires after this much total inactivity.
	activeSetExpiry = 48 * time.Hour
)

// TrackActiveCompany upserts the company into the activity sorted set with
// the current timestamp as score. Called from the login path.
func (s *Store) TrackActiveCompany(ctx context.Context, companyId string) error {
	now := s.now()
	if err := s.backend.ZAdd(ctx, activeCompaniesKey, float64(now.UnixMilli()), companyId); err != nil {
		s.logError("TrackActiveCompany", companyId, err)
		return err
	}
	if err := s.backend.Expire(ctx, activeCompaniesKey, activeSetExpiry); err != nil {
		s.logError("TrackActiveCompany", companyId, err)
	}
	return nil
}

// ActiveCompanyIDs returns companies with a login inside the 24h window.
func (s *Store) ActiveCompanyIDs(ctx context.Context) ([]string, error) {
	cutoff := s.now().Add(-activeWindow)
	ids, err := s.backend.ZRangeByScore(ctx, activeCompaniesKey, float64(cutoff.UnixMilli()))
	if err != nil {
		s.logError("ActiveCompanyIDs", activeCompaniesKey, err)
		return nil, err
	}
	return ids, nil
}
