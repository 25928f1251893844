package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/octobees/supplier-outreach/internal/entity"
)

func setupRedis(t *testing.T) *RedisLedger {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	ledger, err := NewRedisLedger("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestRedisLedgerEnforcesDailyLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ledger := setupRedis(t)
	require.NoError(t, ledger.Ping(ctx))

	p := New(ledger, Config{DailyLimit: 2})
	require.NoError(t, p.RecordSent(ctx, entity.SendRecord{SupplierID: "a"}))
	require.NoError(t, p.RecordFailed(ctx, entity.SendRecord{SupplierID: "b"}))
	require.NoError(t, p.Authorize(ctx, "run-1"))
	require.NoError(t, p.RecordSent(ctx, entity.SendRecord{SupplierID: "c"}))

	assert.ErrorIs(t, p.Authorize(ctx, "run-1"), ErrQuotaExceeded)

	stats, err := p.DailyStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Remaining)

	last, err := ledger.LastSentAt(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, time.Minute)

	tomorrow := New(ledger, Config{DailyLimit: 2}, WithClock(func() time.Time { return time.Now().Add(24 * time.Hour) }))
	assert.NoError(t, tomorrow.Authorize(ctx, "run-2"), "counts follow the policy clock")
}

func TestRedisLedgerEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ledger := setupRedis(t)

	last, err := ledger.LastSentAt(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	n, err := ledger.CountBetween(ctx, entity.SendSent, time.Now().Add(-72*time.Hour), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
