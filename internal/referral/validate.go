package referral

import (
	"context"
	"errors"
	"net/http"

	"github.com/pawtraits/backend/internal/money"
	"go.uber.org/zap"
)

// Reason explains a negative validation outcome to the storefront.
type Reason string

const (
	ReasonNotFound     Reason = "code_not_found"
	ReasonExpired      Reason = "code_expired"
	ReasonInactive     Reason = "code_inactive"
	ReasonSelfReferral Reason = "self_referral"
	ReasonAlreadyUsed  Reason = "discount_already_used"
)

// Discount is what the customer saves.
type Discount struct {
	Percent money.Rate `json:"percentage"`
	Amount  int64      `json:"amount"`
}

// CommissionPreview is what the referrer would earn.
type CommissionPreview struct {
	Rate   money.Rate `json:"rate"`
	Amount int64      `json:"amount"`
}

// ValidationResult is always a well-formed answer: lookups that fail for
// business reasons come back as values with Valid or Eligible unset.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Status     int               `json:"-"`
	Reason     Reason            `json:"reason,omitempty"`
	Message    string            `json:"message,omitempty"`
	Referral   *Descriptor       `json:"referral,omitempty"`
	Eligible   bool              `json:"eligible"`
	Discount   Discount          `json:"discount"`
	Commission CommissionPreview `json:"commission"`
}

// Validate checks a referral code for a customer about to place an order of
// subtotal pence. Only persistence failures are returned as errors.
func (s *Service) Validate(ctx context.Context, code, email string, subtotal int64) (*ValidationResult, error) {
	if !money.ValidAmount(subtotal) {
		return nil, ErrInvalidSubtotal
	}

	desc, err := s.Resolve(ctx, code)
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return &ValidationResult{
			Status:  http.StatusNotFound,
			Reason:  ReasonNotFound,
			Message: "We couldn't find that referral code.",
		}, nil
	case errors.Is(err, ErrCodeExpired):
		return &ValidationResult{
			Status:   http.StatusGone,
			Reason:   ReasonExpired,
			Message:  "This referral code has expired.",
			Referral: desc,
		}, nil
	case errors.Is(err, ErrCodeInactive):
		return &ValidationResult{
			Status:  http.StatusGone,
			Reason:  ReasonInactive,
			Message: "This referral code is no longer active.",
		}, nil
	case err != nil:
		return nil, err
	}

	result := &ValidationResult{
		Valid:    true,
		Status:   http.StatusOK,
		Referral: desc,
	}

	email = normalizeEmail(email)
	if email != "" && email == normalizeEmail(desc.OwnerEmail) {
		result.Reason = ReasonSelfReferral
		result.Message = "You can't use your own referral code."
		return result, nil
	}

	if email != "" {
		used, err := s.HasUsedReferralDiscount(ctx, email)
		if err != nil {
			return nil, err
		}
		if used {
			result.Reason = ReasonAlreadyUsed
			result.Message = "The referral discount is only available on your first order."
			return result, nil
		}
	}

	result.Eligible = true
	result.Discount = Discount{
		Percent: s.settings.DiscountRate,
		Amount:  money.Percent(subtotal, s.settings.DiscountRate),
	}
	result.Commission = CommissionPreview{
		Rate:   desc.CommissionRate,
		Amount: money.Percent(subtotal, desc.CommissionRate),
	}

	s.logger.Debug("referral code validated",
		zap.String("code", desc.Code),
		zap.String("type", string(desc.Type)),
		zap.Int64("subtotal", subtotal),
		zap.Int64("discount", result.Discount.Amount),
	)

	return result, nil
}
