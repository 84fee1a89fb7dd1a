package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/riceledger/riceledger/internal/reports"
)

func newReportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print or export ledger reports",
	}

	var lang string
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Print the stock and balance summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, closeFn, err := e.reportSource(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			bundle, err := src.Bundle(cmd.Context())
			if err != nil {
				return err
			}
			tag, err := language.Parse(lang)
			if err != nil {
				return fmt.Errorf("report: bad --lang %q: %w", lang, err)
			}
			return printSummary(cmd.OutOrStdout(), message.NewPrinter(tag), bundle)
		},
	}
	summary.Flags().StringVar(&lang, "lang", "en-IN", "locale used for number grouping")
	cmd.AddCommand(summary)

	var out, name string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export reports as .xlsx or .csv chosen by the --out extension",
		RunE: func(cmd *cobra.Command, args []string) error {
			ext := strings.ToLower(filepath.Ext(out))
			if ext != ".xlsx" && ext != ".csv" {
				return fmt.Errorf("report: --out must end in .xlsx or .csv, got %q", out)
			}
			src, closeFn, err := e.reportSource(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			bundle, err := src.Bundle(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if ext == ".xlsx" {
				err = reports.WriteXLSX(f, bundle)
			} else {
				err = reports.WriteCSV(f, bundle, name)
			}
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(out)
				return err
			}
			e.logger.Info("report exported", "path", out)
			return nil
		},
	}
	export.Flags().StringVar(&out, "out", "reports.xlsx", "destination file")
	export.Flags().StringVar(&name, "report", reports.CSVCustomers, "report to write for .csv output")
	cmd.AddCommand(export)
	return cmd
}

func printSummary(w io.Writer, p *message.Printer, b reports.Bundle) error {
	s := b.Summary
	money := func(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }
	lines := []struct {
		format string
		args   []any
	}{
		{"Products:            %d\n", []any{s.ProductCount}},
		{"Stock (kg):          %.3f\n", []any{s.TotalStockKg.InexactFloat64()}},
		{"Loose stock (kg):    %.3f\n", []any{s.TotalLooseKg.InexactFloat64()}},
		{"Purchases:           total %.2f  paid %.2f  due %.2f\n", []any{money(s.Purchases.TotalAmount), money(s.Purchases.PaidAmount), money(s.Purchases.BalanceAmount)}},
		{"Sales:               total %.2f  paid %.2f  due %.2f\n", []any{money(s.Sales.TotalAmount), money(s.Sales.PaidAmount), money(s.Sales.BalanceAmount)}},
		{"Low stock products:  %d\n", []any{len(s.LowStock)}},
	}
	for _, l := range lines {
		if _, err := p.Fprintf(w, l.format, l.args...); err != nil {
			return err
		}
	}
	for _, product := range s.LowStock {
		if _, err := p.Fprintf(w, "  - %s (%d bags)\n", product.Name, product.Quantity); err != nil {
			return err
		}
	}
	return nil
}
