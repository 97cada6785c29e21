package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/vnshop/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  atomic.Int32
	gate   chan struct{}
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.report, s.err
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSystemServiceStampsBuildAndStatus(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"events":    {Status: domain.HealthStatusDegraded},
		},
	}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            fixedClock(start.Add(5 * time.Minute)),
		Build:            BuildInfo{Version: "1.4.0", CommitSHA: "c0ffee", Environment: "prod", StartedAt: start},
	})
	require.NoError(t, err)

	report, err := svc.HealthReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1.4.0", report.Version)
	assert.Equal(t, "c0ffee", report.CommitSHA)
	assert.Equal(t, "prod", report.Environment)
	assert.Equal(t, 5*time.Minute, report.Uptime)
	assert.Equal(t, domain.HealthStatusDegraded, report.Status)
	assert.Equal(t, start.Add(5*time.Minute), report.GeneratedAt)
}

func TestSystemServiceErrorCheckWins(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError},
			"events":    {Status: domain.HealthStatusDegraded},
		},
	}}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	require.NoError(t, err)

	report, err := svc.HealthReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusError, report.Status)
}

func TestSystemServiceCachesReport(t *testing.T) {
	clock := &steppingClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	repo := &stubHealthRepository{report: domain.SystemHealthReport{Status: domain.HealthStatusOK}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            clock.Now,
		CacheTTL:         2 * time.Second,
	})
	require.NoError(t, err)

	_, err = svc.HealthReport(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := svc.HealthReport(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, repo.calls.Load())
	assert.Equal(t, time.Second, second.Uptime, "uptime is restamped on cached reads")

	clock.Advance(time.Second)
	_, err = svc.HealthReport(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, repo.calls.Load())
}

func TestSystemServiceSharesConcurrentCollection(t *testing.T) {
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{Status: domain.HealthStatusOK},
		gate:   make(chan struct{}),
	}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.HealthReport(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return repo.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.EqualValues(t, 1, repo.calls.Load())
}

func TestSystemServicePropagatesErrorsWithoutCaching(t *testing.T) {
	repo := &stubHealthRepository{err: errors.New("collector unavailable")}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, CacheTTL: time.Minute})
	require.NoError(t, err)

	_, err = svc.HealthReport(context.Background())
	require.Error(t, err)
	_, err = svc.HealthReport(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 2, repo.calls.Load())
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	_, err := NewSystemService(SystemServiceDeps{})
	assert.Error(t, err)
}
