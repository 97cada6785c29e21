package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/repositories"
)

// BuildInfo is stamped onto every health report.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires the readiness service. CacheTTL reuses a collected report for that
// long so aggressive pollers do not hammer Firestore; zero disables caching.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	CacheTTL         time.Duration
}

type systemService struct {
	health repositories.HealthRepository
	now    func() time.Time
	build  BuildInfo
	ttl    time.Duration

	flight singleflight.Group
	mu     sync.Mutex
	cached domain.SystemHealthReport
	expiry time.Time
}

var _ SystemService = (*systemService)(nil)

func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	svc := &systemService{
		health: deps.HealthRepository,
		now:    func() time.Time { return now().UTC() },
		build:  deps.Build,
		ttl:    deps.CacheTTL,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if report, ok := s.fromCache(); ok {
		return s.stamp(report), nil
	}

	// Concurrent checks share one collection.
	v, err, _ := s.flight.Do("collect", func() (any, error) {
		report, err := s.health.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if report.Checks == nil {
			report.Checks = map[string]domain.SystemHealthCheck{}
		}
		if strings.TrimSpace(report.Status) == "" {
			report.Status = statusOf(report.Checks)
		}
		if report.GeneratedAt.IsZero() {
			report.GeneratedAt = s.now()
		}
		s.store(report)
		return report, nil
	})
	if err != nil {
		return SystemHealthReport{}, err
	}
	return s.stamp(v.(domain.SystemHealthReport)), nil
}

func (s *systemService) fromCache() (domain.SystemHealthReport, bool) {
	if s.ttl <= 0 {
		return domain.SystemHealthReport{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry.IsZero() || !s.now().Before(s.expiry) {
		return domain.SystemHealthReport{}, false
	}
	return s.cached, true
}

func (s *systemService) store(report domain.SystemHealthReport) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.cached = report
	s.expiry = s.now().Add(s.ttl)
	s.mu.Unlock()
}

// stamp fills build metadata and uptime, which change between cached reads.
func (s *systemService) stamp(report domain.SystemHealthReport) domain.SystemHealthReport {
	if strings.TrimSpace(report.Version) == "" {
		report.Version = s.build.Version
	}
	if strings.TrimSpace(report.CommitSHA) == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if strings.TrimSpace(report.Environment) == "" {
		report.Environment = s.build.Environment
	}
	report.Uptime = s.now().Sub(s.build.StartedAt)
	return report
}

func statusOf(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusError:
			return domain.HealthStatusError
		case domain.HealthStatusDegraded:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
