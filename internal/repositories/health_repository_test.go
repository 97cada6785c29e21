package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/vnshop/api/internal/domain"
)

func healthy(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func blocking(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDependencyHealthRepositoryCollect(t *testing.T) {
	tests := []struct {
		name       string
		checks     []DependencyCheck
		wantStatus string
		wantChecks map[string]string
		wantDetail map[string]string
	}{
		{
			name: "all healthy",
			checks: []DependencyCheck{
				{Name: "firestore", Check: healthy},
				{Name: "pubsub", Optional: true, Check: healthy},
			},
			wantStatus: domain.HealthStatusOK,
			wantChecks: map[string]string{"firestore": domain.HealthStatusOK, "pubsub": domain.HealthStatusOK},
		},
		{
			name: "optional broker down degrades",
			checks: []DependencyCheck{
				{Name: "firestore", Check: healthy},
				{Name: "kafka", Optional: true, Check: failing("dial tcp 10.0.0.5:9092: connection refused")},
			},
			wantStatus: domain.HealthStatusDegraded,
			wantChecks: map[string]string{"firestore": domain.HealthStatusOK, "kafka": domain.HealthStatusDegraded},
			wantDetail: map[string]string{"kafka": "unreachable"},
		},
		{
			name: "required store down is an error",
			checks: []DependencyCheck{
				{Name: "firestore", Check: failing("rpc error: code = Unavailable")},
				{Name: "pubsub", Optional: true, Check: failing("topic not found")},
			},
			wantStatus: domain.HealthStatusError,
			wantChecks: map[string]string{"firestore": domain.HealthStatusError, "pubsub": domain.HealthStatusDegraded},
		},
		{
			name: "slow check times out",
			checks: []DependencyCheck{
				{Name: "firestore", Timeout: 5 * time.Millisecond, Check: blocking},
			},
			wantStatus: domain.HealthStatusError,
			wantChecks: map[string]string{"firestore": domain.HealthStatusError},
			wantDetail: map[string]string{"firestore": "timeout"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := NewDependencyHealthRepository(tc.checks)
			require.NoError(t, err)

			report, err := repo.Collect(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tc.wantStatus, report.Status)
			require.Len(t, report.Checks, len(tc.wantChecks))
			for name, status := range tc.wantChecks {
				assert.Equal(t, status, report.Checks[name].Status, name)
			}
			for name, detail := range tc.wantDetail {
				assert.Equal(t, detail, report.Checks[name].Detail, name)
			}
		})
	}
}

func TestDependencyHealthRepositoryUsesClockAndDefaultTimeout(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository(
		[]DependencyCheck{{Name: " firestore ", Check: blocking}},
		WithDependencyClock(func() time.Time { return now }),
		WithDependencyTimeout(5*time.Millisecond),
	)
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, now, report.GeneratedAt)
	check, ok := report.Checks["firestore"]
	require.True(t, ok, "check names are trimmed")
	assert.Equal(t, now, check.CheckedAt)
	assert.Equal(t, "timeout", check.Detail)
}

func TestNewDependencyHealthRepositoryRejectsInvalidChecks(t *testing.T) {
	cases := map[string][]DependencyCheck{
		"empty":     nil,
		"no name":   {{Name: " ", Check: healthy}},
		"no func":   {{Name: "firestore"}},
		"duplicate": {{Name: "firestore", Check: healthy}, {Name: " firestore", Check: healthy}},
	}
	for name, checks := range cases {
		_, err := NewDependencyHealthRepository(checks)
		assert.Error(t, err, name)
	}
}
