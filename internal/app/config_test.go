package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/ledger/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LEDGER_STORE", "Memory")
	t.Setenv("REPORTING_CURRENCY", "EUR")
	t.Setenv("REPORT_RATE_LIMIT", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.LedgerStore)
	require.Equal(t, "EUR", cfg.ReportingCurrency)
	require.Equal(t, 5, cfg.ReportRateLimit)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.False(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "postgres", cfg: Config{LedgerStore: "postgres", PGDSN: "postgres://x", ReportingCurrency: "USD"}},
		{name: "postgres without dsn", cfg: Config{LedgerStore: "postgres", ReportingCurrency: "USD"}, wantErr: true},
		{name: "sqlite without path", cfg: Config{LedgerStore: "sqlite", ReportingCurrency: "USD"}, wantErr: true},
		{name: "unknown store", cfg: Config{LedgerStore: "bolt", ReportingCurrency: "USD"}, wantErr: true},
		{name: "missing currency", cfg: Config{LedgerStore: "memory"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRedisEnabled(t *testing.T) {
	require.False(t, (&Config{RedisAddr: "  "}).RedisEnabled())
	require.True(t, (&Config{RedisAddr: "127.0.0.1:6379"}).RedisEnabled())
	var cfg *Config
	require.False(t, cfg.RedisEnabled())
}
