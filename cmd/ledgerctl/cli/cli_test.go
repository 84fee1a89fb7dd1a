package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/riceledger/riceledger/internal/app"
	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
	"github.com/riceledger/riceledger/internal/reports"
)

type stubReports struct {
	bundle reports.Bundle
	err    error
}

func (s stubReports) Bundle(context.Context) (reports.Bundle, error) {
	return s.bundle, s.err
}

func sampleBundle() reports.Bundle {
	return reports.Bundle{
		Customers: []reports.CustomerReport{{
			Name:    "Ravi",
			Balance: ledger.NewBalance(decimal.NewFromInt(3600), decimal.NewFromInt(3600)),
		}},
		Summary: reports.Summary{
			ProductCount: 2,
			TotalStockKg: decimal.RequireFromString("1234.5"),
			Sales:        ledger.NewBalance(decimal.NewFromInt(3900), decimal.NewFromInt(300)),
			LowStock:     []inventory.Product{{Name: "Basmati", Quantity: 1}},
		},
	}
}

func run(t *testing.T, src ReportSource, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd(Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Reports: src,
		Config:  &app.Config{LogLevel: "error"},
	})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestReportSummaryGroupsNumbers(t *testing.T) {
	out, err := run(t, stubReports{bundle: sampleBundle()}, "report", "summary", "--lang", "en")
	require.NoError(t, err)

	require.Contains(t, out, "Products:            2")
	require.Contains(t, out, "1,234.500")
	require.Contains(t, out, "total 3,900.00  paid 300.00  due 3,600.00")
	require.Contains(t, out, "- Basmati (1 bags)")
}

func TestReportSummaryPropagatesErrors(t *testing.T) {
	_, err := run(t, stubReports{err: errors.New("db down")}, "report", "summary")
	require.ErrorContains(t, err, "db down")

	_, err = run(t, stubReports{bundle: sampleBundle()}, "report", "summary", "--lang", "!!")
	require.ErrorContains(t, err, "bad --lang")
}

func TestReportExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	_, err := run(t, stubReports{bundle: sampleBundle()}, "report", "export", "--out", path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	require.Contains(t, f.GetSheetList(), reports.SheetSummary)
	require.Contains(t, f.GetSheetList(), reports.SheetCustomers)
}

func TestReportExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.csv")
	_, err := run(t, stubReports{bundle: sampleBundle()}, "report", "export", "--out", path, "--report", reports.CSVCustomers)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "Name,Phone,Transactions,Total,Paid,Balance", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "Ravi,"))
}

func TestReportExportRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, stubReports{bundle: sampleBundle()}, "report", "export", "--out", filepath.Join(dir, "x.pdf"))
	require.ErrorContains(t, err, ".xlsx or .csv")

	bad := filepath.Join(dir, "x.csv")
	_, err = run(t, stubReports{bundle: sampleBundle()}, "report", "export", "--out", bad, "--report", "suppliers")
	require.ErrorContains(t, err, "unknown csv report")
	_, statErr := os.Stat(bad)
	require.True(t, os.IsNotExist(statErr), "partial export must be removed")
}

func TestJobsTriggerRejectsUnknownTask(t *testing.T) {
	_, err := run(t, nil, "jobs", "trigger", "inventory:revalue")
	require.ErrorContains(t, err, "unsupported job")
}

func TestLogLevel(t *testing.T) {
	require.Equal(t, "DEBUG", logLevel("debug").String())
	require.Equal(t, "INFO", logLevel("nonsense").String())
}

func TestSeedLoadsConsistentDemoData(t *testing.T) {
	var out bytes.Buffer
	e := &env{cfg: &app.Config{StoreDriver: app.StoreMemory, LooseDefaultOwner: "default"}, logger: slog.New(slog.DiscardHandler)}
	svc, closeFn, err := e.openServices(context.Background())
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, seedDemo(context.Background(), svc, &out))
	require.Contains(t, out.String(), "Seed complete")

	bundle, err := reports.NewService(svc.ledger, svc.inventory, nil).Bundle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, bundle.Summary.ProductCount)
	require.Len(t, bundle.Billers, 2)
	require.Len(t, bundle.Customers, 2)
	require.Len(t, bundle.LooseCustomers, 1)
	require.True(t, bundle.Summary.Purchases.BalanceAmount.Equal(decimal.NewFromInt(44000)), bundle.Summary.Purchases.BalanceAmount.String())
	require.True(t, bundle.Summary.TotalLooseKg.Equal(decimal.RequireFromString("39.5")), bundle.Summary.TotalLooseKg.String())
}
