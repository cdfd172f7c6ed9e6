package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RedeemCredit spends amount of a customer's credit against an order. It is
// idempotent per order: a second call returns the first redemption.
func (r *Recorder) RedeemCredit(ctx context.Context, customerID, orderID uuid.UUID, amount int64) (*models.CreditRedemption, error) {
	if amount <= 0 || !money.ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}

	db := r.db.WithContext(ctx)

	existing, err := findRedemption(db, orderID)
	if err != nil || existing != nil {
		return existing, err
	}

	tx := db.Begin()
	defer func() {
		if rec := recover(); rec != nil {
			tx.Rollback()
			panic(rec)
		}
	}()

	res := tx.Model(&models.Customer{}).
		Where("id = ? AND credit_balance >= ?", customerID, amount).
		Update("credit_balance", gorm.Expr("credit_balance - ?", amount))
	if res.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error debiting credit balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		var n int64
		if err := db.Model(&models.Customer{}).Where("id = ?", customerID).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("error finding customer: %w", err)
		}
		if n == 0 {
			return nil, ErrCustomerNotFound
		}
		return nil, ErrInsufficientCredit
	}

	redemption := models.CreditRedemption{
		CustomerID: customerID,
		OrderID:    orderID,
		Amount:     amount,
	}
	if err := tx.Create(&redemption).Error; err != nil {
		tx.Rollback()
		// Lost a race against a concurrent redemption for the same order;
		// the rollback has restored the balance.
		existing, ferr := findRedemption(db, orderID)
		if ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("error creating credit redemption: %w", err)
	}

	if err := r.settleRedeemedCredits(tx, customerID, orderID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("error committing credit redemption: %w", err)
	}

	r.logger.Info("customer credit redeemed",
		zap.String("customer_id", customerID.String()),
		zap.String("order_id", orderID.String()),
		zap.Int64("amount", amount),
	)
	return &redemption, nil
}

// settleRedeemedCredits marks credits fully covered by redemptions as
// redeemed, oldest first.
func findRedemption(db *gorm.DB, orderID uuid.UUID) (*models.CreditRedemption, error) {
	var existing models.CreditRedemption
	err := db.Where("order_id = ?", orderID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error finding credit redemption: %w", err)
	}
	return &existing, nil
}

func (r *Recorder) settleRedeemedCredits(tx *gorm.DB, customerID, orderID uuid.UUID) error {
	var redeemed int64
	if err := tx.Model(&models.CreditRedemption{}).
		Where("customer_id = ?", customerID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&redeemed).Error; err != nil {
		return fmt.Errorf("error summing redemptions: %w", err)
	}

	var credits []models.Commission
	if err := tx.Where("recipient_type = ? AND recipient_id = ? AND balance_applied_at IS NOT NULL",
		models.RecipientCustomer, customerID).
		Order("created_at, id").
		Find(&credits).Error; err != nil {
		return fmt.Errorf("error loading credits: %w", err)
	}

	now := r.now()
	var covered int64
	for i := range credits {
		c := &credits[i]
		covered += c.CommissionAmount
		if covered > redeemed {
			break
		}
		if c.Status == models.CommissionStatusRedeemed || !CanTransition(c.Status, models.CommissionStatusRedeemed) {
			continue
		}

		metadata := models.JSON{}
		if c.Metadata != nil {
			metadata = c.Metadata.Clone()
		}
		metadata["redeemed_at"] = now.UTC().Format(time.RFC3339)
		metadata["redeemed_order_id"] = orderID.String()

		err := tx.Model(&models.Commission{}).
			Where("id = ? AND status = ?", c.ID, c.Status).
			Updates(map[string]interface{}{
				"status":      models.CommissionStatusRedeemed,
				"redeemed_at": now,
				"metadata":    metadata,
			}).Error
		if err != nil {
			return fmt.Errorf("error settling credit %s: %w", c.ID, err)
		}
	}
	return nil
}

// Summary is a customer's credit position computed from the ledgers.
type Summary struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Balance    int64     `json:"balance"`
	Earned     int64     `json:"total_earned"`
	Pending    int64     `json:"total_pending"`
	Redeemed   int64     `json:"total_redeemed"`
	Expected   int64     `json:"expected_balance"`
	Drift      int64     `json:"drift"`
}

// BalanceSummary sums the credit and redemption ledgers for a customer and
// compares the result with the stored balance.
func (r *Recorder) BalanceSummary(ctx context.Context, customerID uuid.UUID) (*Summary, error) {
	db := r.db.WithContext(ctx)

	var customer models.Customer
	if err := db.Select("id", "credit_balance").First(&customer, "id = ?", customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("error finding customer: %w", err)
	}

	s := &Summary{CustomerID: customer.ID, Balance: customer.CreditBalance}

	credits := db.Model(&models.Commission{}).
		Where("recipient_type = ? AND recipient_id = ?", models.RecipientCustomer, customerID)

	if err := credits.Session(&gorm.Session{}).
		Where("balance_applied_at IS NOT NULL").
		Select("COALESCE(SUM(commission_amount), 0)").
		Scan(&s.Earned).Error; err != nil {
		return nil, fmt.Errorf("error summing earned credit: %w", err)
	}
	if err := credits.Session(&gorm.Session{}).
		Where("balance_applied_at IS NULL AND status <> ?", models.CommissionStatusRedeemed).
		Select("COALESCE(SUM(commission_amount), 0)").
		Scan(&s.Pending).Error; err != nil {
		return nil, fmt.Errorf("error summing pending credit: %w", err)
	}
	if err := db.Model(&models.CreditRedemption{}).
		Where("customer_id = ?", customerID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&s.Redeemed).Error; err != nil {
		return nil, fmt.Errorf("error summing redemptions: %w", err)
	}

	s.Expected = s.Earned - s.Redeemed
	s.Drift = s.Balance - s.Expected
	return s, nil
}

// Reconcile returns a summary for every customer whose stored balance
// disagrees with their ledgers.
func (r *Recorder) Reconcile(ctx context.Context) ([]Summary, error) {
	db := r.db.WithContext(ctx)

	ids := map[uuid.UUID]struct{}{}
	var withBalance, withCredits, withRedemptions []uuid.UUID

	if err := db.Model(&models.Customer{}).Where("credit_balance <> 0").Pluck("id", &withBalance).Error; err != nil {
		return nil, fmt.Errorf("error listing customer balances: %w", err)
	}
	if err := db.Model(&models.Commission{}).
		Where("recipient_type = ?", models.RecipientCustomer).
		Distinct().Pluck("recipient_id", &withCredits).Error; err != nil {
		return nil, fmt.Errorf("error listing credit recipients: %w", err)
	}
	if err := db.Model(&models.CreditRedemption{}).Distinct().Pluck("customer_id", &withRedemptions).Error; err != nil {
		return nil, fmt.Errorf("error listing redemptions: %w", err)
	}
	for _, group := range [][]uuid.UUID{withBalance, withCredits, withRedemptions} {
		for _, id := range group {
			ids[id] = struct{}{}
		}
	}

	var drifted []Summary
	for id := range ids {
		s, err := r.BalanceSummary(ctx, id)
		if errors.Is(err, ErrCustomerNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Drift != 0 {
			r.logger.Warn("customer credit balance drift",
				zap.String("customer_id", id.String()),
				zap.Int64("balance", s.Balance),
				zap.Int64("expected", s.Expected),
				zap.Int64("drift", s.Drift),
			)
			drifted = append(drifted, *s)
		}
	}
	return drifted, nil
}

// ListCredits returns a customer's most recent credits.
func (r *Recorder) ListCredits(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Commission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var credits []models.Commission
	err := r.db.WithContext(ctx).
		Where("recipient_type = ? AND recipient_id = ?", models.RecipientCustomer, customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&credits).Error
	if err != nil {
		return nil, fmt.Errorf("error listing credits: %w", err)
	}
	return credits, nil
}
