package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	"github.com/odyssey-erp/ledger/jobs"
	_ "github.com/odyssey-erp/ledger/testing"
)

func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("LEDGER_STORE", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "ledger.db"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REPORTING_CURRENCY", "USD")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestSeedThenReportJSON(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "seed", "--year", "2024")
	require.NoError(t, err)
	require.Contains(t, out, "IN01/0001")

	out, err = run(t, "report", "--kind", "income-statement", "--year", "2024", "--format", "json")
	require.NoError(t, err)
	var is reports.IncomeStatement
	require.NoError(t, json.Unmarshal([]byte(out), &is))
	require.Equal(t, "1300.00", is.NetProfit.StringFixed(2))
	require.Equal(t, "USD", is.Currency)

	out, err = run(t, "report", "--year", "2024", "--as-of", "2024-12-31")
	require.NoError(t, err)
	if !strings.HasPrefix(out, "trial balance 2024 as of 2024-12-31 (USD)") {
		t.Fatalf("unexpected header: %q", out)
	}
	require.Contains(t, out, "40888.00")
	require.Contains(t, out, "(2400.00)")

	_, err = run(t, "seed", "--year", "2024")
	require.Error(t, err)
}

func TestReportRejectsBadFlags(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "report", "--kind", "cash-flow")
	require.ErrorIs(t, err, reports.ErrUnknownKind)

	_, err = run(t, "report", "--format", "xml")
	require.Error(t, err)

	_, err = run(t, "report", "--as-of", "31/12/2024")
	require.Error(t, err)
}

func TestIntegrityAndPeriodCommands(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "period", "open", "2024")
	require.NoError(t, err)
	require.Equal(t, "period 2024 (2024-01-01 to 2024-12-31) OPEN\n", out)

	out, err = run(t, "integrity", "--year", "2024", "--year", "2031")
	require.NoError(t, err)
	require.Equal(t, "2024\t0.00\t0.00\tok\n", out)

	out, err = run(t, "period", "close", "2024")
	require.NoError(t, err)
	require.Contains(t, out, "CLOSED")

	_, err = run(t, "period", "open", "twenty")
	require.Error(t, err)
}

func TestMigrateSQLiteIsNoop(t *testing.T) {
	useSQLite(t)
	out, err := run(t, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "sqlite schema is applied on open")
}

func TestServeAndWorkerSkipInTestMode(t *testing.T) {
	t.Setenv("LEDGER_STORE", "memory")
	_, err := run(t, "serve")
	require.NoError(t, err)
	_, err = run(t, "worker")
	require.NoError(t, err)
}

func TestJobsTrigger(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("LEDGER_STORE", "memory")
	t.Setenv("REDIS_ADDR", mr.Addr())

	out, err := run(t, "jobs", "trigger", jobs.TaskLedgerIntegrity, "--year", "2024")
	require.NoError(t, err)
	require.Contains(t, out, "enqueued "+jobs.TaskLedgerIntegrity)

	out, err = run(t, "jobs", "trigger", jobs.TaskReportsWarmup)
	require.NoError(t, err)
	require.Contains(t, out, "queue="+jobs.QueueDefault)

	_, err = run(t, "jobs", "trigger", "email:send")
	require.Error(t, err)

	t.Setenv("REDIS_ADDR", "")
	_, err = run(t, "jobs", "stats")
	require.Error(t, err)
}
