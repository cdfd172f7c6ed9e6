// Package jobs wires background work: queued job handlers and the periodic
// maintenance schedule.
package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/portrait"
	"github.com/pawtraits/backend/internal/queue"
	"go.uber.org/zap"
)

// ApplyCreditPayload asks a worker to finish customer balance updates that
// failed inline.
type ApplyCreditPayload struct {
	CommissionID uuid.UUID `json:"commission_id"`
}

// PortraitProcessor runs one portrait generation.
type PortraitProcessor interface {
	Process(ctx context.Context, id uuid.UUID) error
}

// RegisterAllJobHandlers registers all job handlers with the processor
func RegisterAllJobHandlers(p *queue.Processor, portraits PortraitProcessor, balances BalanceMaintainer, logger *zap.Logger) {
	p.RegisterHandler(queue.JobTypeGeneratePortrait, PortraitHandler(portraits))
	p.RegisterHandler(queue.JobTypeApplyCredit, ApplyCreditHandler(balances, logger))
}

// PortraitHandler runs a queued portrait generation.
func PortraitHandler(svc PortraitProcessor) queue.JobHandler {
	return func(ctx context.Context, job queue.Job) error {
		var payload portrait.JobPayload
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("error decoding portrait job: %w", err)
		}
		return svc.Process(ctx, payload.VariationID)
	}
}

// ApplyCreditHandler retries unapplied customer credits. Any pending credit
// is retried, not only the one named in the payload.
func ApplyCreditHandler(balances BalanceMaintainer, logger *zap.Logger) queue.JobHandler {
	return func(ctx context.Context, job queue.Job) error {
		var payload ApplyCreditPayload
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("error decoding apply credit job: %w", err)
		}
		fixed, err := balances.RetryPendingBalances(ctx)
		if err != nil {
			return err
		}
		logger.Info("customer credits re-applied",
			zap.String("commission_id", payload.CommissionID.String()),
			zap.Int("fixed", fixed),
		)
		return nil
	}
}
