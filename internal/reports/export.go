package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Sheet names used by WriteXLSX.
const (
	SheetSummary        = "Summary"
	SheetBillers        = "Billers"
	SheetCustomers      = "Customers"
	SheetLooseCustomers = "Loose Customers"
	SheetProducts       = "Products"
	SheetLooseStock     = "Loose Stock"
)

// CSV report names accepted by WriteCSV.
const (
	CSVBillers        = "billers"
	CSVCustomers      = "customers"
	CSVLooseCustomers = "loose-customers"
	CSVProducts       = "products"
)

var partyHeader = []string{"Name", "Phone", "Transactions", "Total", "Paid", "Balance"}

var productHeader = []string{
	"Product", "Bag Kg", "Bags Purchased", "Kg Purchased", "Purchase Value",
	"Bags Sold", "Kg Sold", "Sales Value", "Loose Kg Sold", "Loose Sales Value",
	"Bags In Stock", "Stock Kg", "Low Stock", "Deleted",
}

// WriteXLSX renders the bundle as a workbook with one sheet per report.
func WriteXLSX(w io.Writer, b Bundle) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("reports: xlsx: %w", err)
	}
	summary := [][]any{
		{"Generated At", b.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Products", b.Summary.ProductCount},
		{"Stock Kg", num(b.Summary.TotalStockKg)},
		{"Loose Kg", num(b.Summary.TotalLooseKg)},
		{"Purchases Total", num(b.Summary.Purchases.TotalAmount)},
		{"Purchases Balance", num(b.Summary.Purchases.BalanceAmount)},
		{"Sales Total", num(b.Summary.Sales.TotalAmount)},
		{"Sales Balance", num(b.Summary.Sales.BalanceAmount)},
		{"Low Stock Products", len(b.Summary.LowStock)},
	}
	if err := writeRows(f, SheetSummary, nil, summary); err != nil {
		return err
	}

	sheets := []struct {
		name   string
		header []string
		rows   [][]any
	}{
		{SheetBillers, partyHeader, billerRows(b.Billers)},
		{SheetCustomers, partyHeader, customerRows(b.Customers)},
		{SheetLooseCustomers, partyHeader, looseCustomerRows(b.LooseCustomers)},
		{SheetProducts, productHeader, productRows(b.Products)},
		{SheetLooseStock, []string{"Product", "Owner", "Bag Kg", "Bags Converted", "Loose Kg", "Sold Kg"}, looseRows(b.LooseStock)},
	}
	for _, sheet := range sheets {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("reports: xlsx: %w", err)
		}
		if err := writeRows(f, sheet.name, sheet.header, sheet.rows); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("reports: xlsx write: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, header []string, rows [][]any) error {
	row := 1
	if header != nil {
		values := make([]any, len(header))
		for i, h := range header {
			values[i] = h
		}
		if err := f.SetSheetRow(sheet, "A1", &values); err != nil {
			return fmt.Errorf("reports: xlsx %s header: %w", sheet, err)
		}
		row++
	}
	for _, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("reports: xlsx %s row %d: %w", sheet, row, err)
		}
		row++
	}
	return nil
}

// WriteCSV writes one named report as CSV.
func WriteCSV(w io.Writer, b Bundle, name string) error {
	var (
		header []string
		rows   [][]any
	)
	switch name {
	case CSVBillers:
		header, rows = partyHeader, billerRows(b.Billers)
	case CSVCustomers:
		header, rows = partyHeader, customerRows(b.Customers)
	case CSVLooseCustomers:
		header, rows = partyHeader, looseCustomerRows(b.LooseCustomers)
	case CSVProducts:
		header, rows = productHeader, productRows(b.Products)
	default:
		return fmt.Errorf("reports: unknown csv report %q", name)
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = csvValue(v)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func csvValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func billerRows(reports []BillerReport) [][]any {
	rows := make([][]any, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []any{r.Name, r.Phone, len(r.Purchases), num(r.TotalAmount), num(r.PaidAmount), num(r.BalanceAmount)})
	}
	return rows
}

func customerRows(reports []CustomerReport) [][]any {
	rows := make([][]any, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []any{r.Name, r.Phone, len(r.Sales), num(r.TotalAmount), num(r.PaidAmount), num(r.BalanceAmount)})
	}
	return rows
}

func looseCustomerRows(reports []LooseCustomerReport) [][]any {
	rows := make([][]any, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []any{r.Name, r.Phone, len(r.Sales), num(r.TotalAmount), num(r.PaidAmount), num(r.BalanceAmount)})
	}
	return rows
}

func productRows(reports []ProductReport) [][]any {
	rows := make([][]any, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []any{
			r.ProductName, r.WeightPerBag, r.BagsPurchased, num(r.KgPurchased), num(r.PurchaseValue),
			r.BagsSold, num(r.KgSold), num(r.SalesValue), num(r.LooseKgSold), num(r.LooseSalesValue),
			r.Quantity, num(r.Stock), r.LowStock, r.Deleted,
		})
	}
	return rows
}

func looseRows(summary LooseStockSummary) [][]any {
	rows := make([][]any, 0, len(summary.Entries))
	for _, e := range summary.Entries {
		rows = append(rows, []any{e.ProductName, e.Owner, e.WeightPerBag, e.BagsConverted, num(e.LooseQuantity), num(e.SoldKg)})
	}
	return rows
}

func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
