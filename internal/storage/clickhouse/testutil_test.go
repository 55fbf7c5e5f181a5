package clickhouse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/storage"
	"market-candle-lab/internal/storage/clickhouse"
	"market-candle-lab/internal/storage/migrations"
)

const testDay = int64(1_710_028_800_000_000) // 2024-03-10

// newTestConn starts a ClickHouse server, lets the migration runner create
// the candles database and returns the connection bound to it.
func newTestConn(t *testing.T) *clickhouse.Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("clickhouse container test skipped in -short mode")
	}
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.3-alpine",
			ExposedPorts: []string{"9000/tcp"},
			Env:          map[string]string{"CLICKHOUSE_SKIP_USER_SETUP": "1"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("9000/tcp"),
				wait.ForLog("Ready for connections").WithStartupTimeout(90*time.Second),
			),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate clickhouse: %v", err)
		}
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://default@%s:%s/candles?dial_timeout=5s&compress=lz4", host, port.Port())
	conn, applied, err := migrations.RunClickhouseMigrations(ctx, dsn)
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	t.Cleanup(func() { _ = conn.Close() })
	require.Equal(t, "candles", conn.Database())
	return conn
}

func hourKey() storage.DayKey {
	return storage.DayKey{Exchange: "deribit", InstrumentKey: "BTC-PERPETUAL", Timeframe: domain.Timeframe1h, DayStartUs: testDay}
}
