package ledger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/riceledger/riceledger/internal/shared"
)

// AddPayment applies a payment to a purchase, sale or loose sale. Stock is not touched.
func (s *Service) AddPayment(ctx context.Context, kind Kind, transactionID uuid.UUID, input PaymentInput) (payment Payment, err error) {
	defer func() { s.observe(ctx, "add_payment", err) }()
	if !kind.Valid() {
		return Payment{}, shared.Validation("kind", "must be one of purchase sale loose_sale")
	}
	input.Note = strings.TrimSpace(input.Note)
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Payment{}, err
	}
	amount := money(input.Amount)
	if !amount.IsPositive() {
		return Payment{}, shared.Validation("amount", "must be greater than 0")
	}

	release, err := s.locker.Acquire(ctx, shared.TransactionLockKey(string(kind), transactionID))
	if err != nil {
		return Payment{}, err
	}
	defer release()

	var after Balance
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.now()
		current, err := tx.GetBalanceForUpdate(ctx, kind, transactionID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(current.BalanceAmount) {
			return &shared.OverpaymentError{TransactionID: transactionID.String(), Amount: amount, Balance: current.BalanceAmount}
		}
		date := input.Date
		if date.IsZero() {
			date = now
		}
		payment = Payment{
			ID:            uuid.New(),
			Kind:          kind,
			TransactionID: transactionID,
			Amount:        amount,
			Date:          date,
			Note:          input.Note,
			CreatedAt:     now,
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		after = current.Apply(amount)
		return tx.UpdateBalance(ctx, kind, transactionID, after)
	})
	if err != nil {
		return Payment{}, err
	}
	s.logger.InfoContext(ctx, "payment applied",
		slog.String("kind", string(kind)),
		slog.String("transaction_id", transactionID.String()),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("balance", after.BalanceAmount.StringFixed(2)),
	)
	s.recordAudit(ctx, shared.AuditPaymentAdd, string(kind), transactionID, map[string]any{
		"payment_id": payment.ID.String(),
		"amount":     amount.StringFixed(2),
		"balance":    after.BalanceAmount.StringFixed(2),
	})
	return payment, nil
}

// PayPurchase applies a payment and returns the updated purchase.
func (s *Service) PayPurchase(ctx context.Context, id uuid.UUID, input PaymentInput) (Purchase, error) {
	if _, err := s.AddPayment(ctx, KindPurchase, id, input); err != nil {
		return Purchase{}, err
	}
	return s.repo.GetPurchase(ctx, id)
}

// PaySale applies a payment and returns the updated sale.
func (s *Service) PaySale(ctx context.Context, id uuid.UUID, input PaymentInput) (Sale, error) {
	if _, err := s.AddPayment(ctx, KindSale, id, input); err != nil {
		return Sale{}, err
	}
	return s.repo.GetSale(ctx, id)
}

// PayLooseSale applies a payment and returns the updated loose sale.
func (s *Service) PayLooseSale(ctx context.Context, id uuid.UUID, input PaymentInput) (LooseSale, error) {
	if _, err := s.AddPayment(ctx, KindLooseSale, id, input); err != nil {
		return LooseSale{}, err
	}
	return s.repo.GetLooseSale(ctx, id)
}
