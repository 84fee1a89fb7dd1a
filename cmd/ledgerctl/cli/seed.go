package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
	"github.com/riceledger/riceledger/internal/shared"
)

const seedActor = "ledgerctl-seed"

func newSeedCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo products and transactions through the services",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := e.openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			return seedDemo(shared.ContextWithActor(cmd.Context(), seedActor), svc, cmd.OutOrStdout())
		},
	}
}

func seedDemo(ctx context.Context, svc services, out io.Writer) error {
	step := func(name string) { fmt.Fprintln(out, "→ Seeding "+name+"...") }
	d := decimal.RequireFromString

	step("products")
	catalogue := []inventory.CreateProductInput{
		{Name: "Basmati Rice", WeightPerBag: 26, LowStockAlert: 5},
		{Name: "Sona Masoori", WeightPerBag: 25, LowStockAlert: 4},
		{Name: "Kolam", WeightPerBag: 30, LowStockAlert: 3},
	}
	ids := make(map[string]uuid.UUID, len(catalogue))
	for _, in := range catalogue {
		p, err := svc.inventory.CreateProduct(ctx, in)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", in.Name, err)
		}
		ids[in.Name] = p.ID
	}
	line := func(product string, bags int64, price string) ledger.ItemInput {
		return ledger.ItemInput{ProductID: ids[product], Quantity: bags, UnitPrice: d(price)}
	}

	step("purchases")
	purchases := []ledger.CreatePurchaseInput{
		{
			BillerName: "Sharma Traders", BillerPhone: "9810000001",
			Items:      []ledger.ItemInput{line("Basmati Rice", 40, "1450"), line("Sona Masoori", 30, "1200")},
			PaidAmount: d("50000"),
		},
		{
			BillerName: "Patel Agro",
			Items:      []ledger.ItemInput{line("Kolam", 20, "1100")},
			PaidAmount: d("22000"),
		},
	}
	for _, in := range purchases {
		if _, err := svc.ledger.CreatePurchase(ctx, in); err != nil {
			return fmt.Errorf("seed purchase from %s: %w", in.BillerName, err)
		}
	}

	step("sales")
	if _, err := svc.ledger.CreateSale(ctx, ledger.CreateSaleInput{
		CustomerName: "Ravi Kumar", CustomerPhone: "9820000002",
		Items:        []ledger.ItemInput{line("Basmati Rice", 12, "1600")},
		PaidAmount:   d("10000"),
	}); err != nil {
		return fmt.Errorf("seed sale: %w", err)
	}
	credit, err := svc.ledger.CreateSale(ctx, ledger.CreateSaleInput{
		CustomerName: "Anita Stores",
		Items:        []ledger.ItemInput{line("Sona Masoori", 8, "1350"), line("Kolam", 5, "1250")},
	})
	if err != nil {
		return fmt.Errorf("seed sale: %w", err)
	}
	if _, err := svc.ledger.PaySale(ctx, credit.ID, ledger.PaymentInput{Amount: d("5000"), Note: "first instalment"}); err != nil {
		return fmt.Errorf("seed payment: %w", err)
	}

	step("loose stock")
	pool, err := svc.inventory.ConvertToLoose(ctx, inventory.ConvertInput{ProductID: ids["Basmati Rice"], Bags: 2})
	if err != nil {
		return fmt.Errorf("seed conversion: %w", err)
	}
	if _, err := svc.ledger.CreateLooseSale(ctx, ledger.CreateLooseSaleInput{
		CustomerName: "Lakshmi",
		Items:        []ledger.LooseItemInput{{LooseStockID: pool.ID, QuantityKg: d("12.5"), PricePerKg: d("65")}},
		PaidAmount:   d("812.50"),
	}); err != nil {
		return fmt.Errorf("seed loose sale: %w", err)
	}

	fmt.Fprintln(out, "✓ Seed complete")
	return nil
}
