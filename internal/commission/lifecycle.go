package commission

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/models"
	"go.uber.org/zap"
)

var transitions = map[models.CommissionStatus][]models.CommissionStatus{
	models.CommissionStatusPending:  {models.CommissionStatusApproved, models.CommissionStatusPaid},
	models.CommissionStatusApproved: {models.CommissionStatusPaid, models.CommissionStatusRedeemed},
	models.CommissionStatusPaid:     {models.CommissionStatusRedeemed},
}

// CanTransition reports whether a commission may move from one status to another.
func CanTransition(from, to models.CommissionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func sourcesFor(to models.CommissionStatus) []models.CommissionStatus {
	var from []models.CommissionStatus
	for src, targets := range transitions {
		for _, t := range targets {
			if t == to {
				from = append(from, src)
			}
		}
	}
	return from
}

// Transition moves a commission to status to. The update only applies if the
// row is still in a status that allows the move, so concurrent admin actions
// cannot both succeed.
func (r *Recorder) Transition(ctx context.Context, id uuid.UUID, to models.CommissionStatus) (*models.Commission, error) {
	from := sourcesFor(to)
	if len(from) == 0 {
		return nil, ErrInvalidTransition
	}

	now := r.now()
	updates := map[string]interface{}{"status": to}
	switch to {
	case models.CommissionStatusApproved:
		updates["approved_at"] = now
	case models.CommissionStatusPaid:
		updates["paid_at"] = now
	case models.CommissionStatusRedeemed:
		updates["redeemed_at"] = now
	}

	res := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("error updating commission status: %w", res.Error)
	}

	c, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return c, ErrInvalidTransition
	}

	r.logger.Info("commission status changed",
		zap.String("commission_id", id.String()),
		zap.String("status", string(to)),
	)
	return c, nil
}

// Approve marks a pending commission approved.
func (r *Recorder) Approve(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	return r.Transition(ctx, id, models.CommissionStatusApproved)
}

// MarkPaid records a partner payout.
func (r *Recorder) MarkPaid(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	return r.Transition(ctx, id, models.CommissionStatusPaid)
}

// MarkRedeemed closes out a commission.
func (r *Recorder) MarkRedeemed(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	return r.Transition(ctx, id, models.CommissionStatusRedeemed)
}
