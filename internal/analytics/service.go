// Package analytics builds read-only referral dashboards.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/models"
	"gorm.io/gorm"
)

// UserType selects whose dashboard is being built.
type UserType string

const (
	UserPartner    UserType = "partner"
	UserInfluencer UserType = "influencer"
	UserCustomer   UserType = "customer"
)

var (
	ErrUnknownUserType = errors.New("unknown user type")
	ErrOwnerNotFound   = errors.New("referral owner not found")
)

const recentActivityLimit = 10

// ActivityKind is the type of a dashboard event.
type ActivityKind string

const (
	ActivityScan     ActivityKind = "scan"
	ActivitySignup   ActivityKind = "signup"
	ActivityPurchase ActivityKind = "purchase"
)

// Activity is one event in the dashboard feed. CustomerName is only ever
// filled in for customer dashboards, and only with a first name.
type Activity struct {
	Kind         ActivityKind `json:"type"`
	Code         string       `json:"code,omitempty"`
	Amount       int64        `json:"amount,omitempty"`
	CustomerName string       `json:"customer_name,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// CommissionTotals is commission money grouped by status.
type CommissionTotals struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Paid     int64 `json:"paid"`
	Redeemed int64 `json:"redeemed"`
	Total    int64 `json:"total"`
}

func (t *CommissionTotals) add(status models.CommissionStatus, amount int64) {
	switch status {
	case models.CommissionStatusPending:
		t.Pending += amount
	case models.CommissionStatusApproved:
		t.Approved += amount
	case models.CommissionStatusPaid:
		t.Paid += amount
	case models.CommissionStatusRedeemed:
		t.Redeemed += amount
	}
	t.Total += amount
}

// Summary is a referrer's dashboard.
type Summary struct {
	UserType       UserType         `json:"user_type"`
	OwnerID        uuid.UUID        `json:"owner_id"`
	Codes          []string         `json:"codes"`
	Scans          int64            `json:"scans"`
	Signups        int64            `json:"signups"`
	Purchases      int64            `json:"purchases"`
	Revenue        int64            `json:"revenue"`
	SignupRate     float64          `json:"signup_rate"`
	ConversionRate float64          `json:"conversion_rate"`
	Commissions    CommissionTotals `json:"commissions"`
	RecentActivity []Activity       `json:"recent_activity"`
}

// Service computes analytics.
type Service struct {
	db *gorm.DB
}

// NewService creates a new analytics service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// percentOf returns part as a percentage of whole, to one decimal place.
func percentOf(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(whole)) / 10
}

func (s *Service) ownerCodes(ctx context.Context, userType UserType, id uuid.UUID) (models.RecipientType, []string, error) {
	db := s.db.WithContext(ctx)

	switch userType {
	case UserPartner, UserInfluencer:
		var partner models.Partner
		if err := db.Preload("Referrals").First(&partner, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", nil, ErrOwnerNotFound
			}
			return "", nil, fmt.Errorf("error finding partner: %w", err)
		}
		if string(partner.PartnerType) != string(userType) {
			return "", nil, ErrOwnerNotFound
		}
		codes := make([]string, 0, len(partner.Referrals))
		for _, r := range partner.Referrals {
			codes = append(codes, r.Code)
		}
		return models.RecipientPartner, codes, nil
	case UserCustomer:
		var customer models.Customer
		if err := db.First(&customer, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", nil, ErrOwnerNotFound
			}
			return "", nil, fmt.Errorf("error finding customer: %w", err)
		}
		var codes []string
		if customer.PersonalCode != nil {
			codes = append(codes, *customer.PersonalCode)
		}
		return models.RecipientCustomer, codes, nil
	default:
		return "", nil, ErrUnknownUserType
	}
}

// Summary builds the dashboard for a partner, influencer or customer.
func (s *Service) Summary(ctx context.Context, userType UserType, id uuid.UUID) (*Summary, error) {
	recipient, codes, err := s.ownerCodes(ctx, userType, id)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	out := &Summary{
		UserType:       userType,
		OwnerID:        id,
		Codes:          codes,
		RecentActivity: []Activity{},
	}
	if out.Codes == nil {
		out.Codes = []string{}
	}

	if err := db.Model(&models.ReferralScan{}).
		Where("owner_id = ? AND referral_type = ?", id, recipient).
		Count(&out.Scans).Error; err != nil {
		return nil, fmt.Errorf("error counting scans: %w", err)
	}

	var commissions []struct {
		Status models.CommissionStatus
		Total  int64
	}
	if err := db.Model(&models.Commission{}).
		Select("status, COALESCE(SUM(commission_amount), 0) AS total").
		Where("recipient_id = ? AND recipient_type = ?", id, recipient).
		Group("status").
		Scan(&commissions).Error; err != nil {
		return nil, fmt.Errorf("error summing commissions: %w", err)
	}
	for _, c := range commissions {
		out.Commissions.add(c.Status, c.Total)
	}

	var activity []Activity

	if len(codes) > 0 {
		var signups []models.Customer
		if err := db.Where("referred_by_code IN ?", codes).
			Order("created_at DESC").
			Find(&signups).Error; err != nil {
			return nil, fmt.Errorf("error loading signups: %w", err)
		}
		out.Signups = int64(len(signups))
		for i, c := range signups {
			if i == recentActivityLimit {
				break
			}
			a := Activity{Kind: ActivitySignup, Code: *c.ReferredByCode, OccurredAt: c.CreatedAt}
			if recipient == models.RecipientCustomer {
				a.CustomerName = c.FirstName
			}
			activity = append(activity, a)
		}

		var totals struct {
			Count   int64
			Revenue int64
		}
		if err := db.Model(&models.Order{}).
			Select("COUNT(*) AS count, COALESCE(SUM(subtotal_amount), 0) AS revenue").
			Where("referral_code IN ? AND status IN ?", codes, models.RevenueStatuses).
			Scan(&totals).Error; err != nil {
			return nil, fmt.Errorf("error summing referred orders: %w", err)
		}
		out.Purchases = totals.Count
		out.Revenue = totals.Revenue

		var orders []models.Order
		if err := db.Where("referral_code IN ? AND status IN ?", codes, models.RevenueStatuses).
			Order("created_at DESC").
			Limit(recentActivityLimit).
			Find(&orders).Error; err != nil {
			return nil, fmt.Errorf("error loading referred orders: %w", err)
		}
		for _, o := range orders {
			activity = append(activity, Activity{
				Kind:       ActivityPurchase,
				Code:       *o.ReferralCode,
				Amount:     o.SubtotalAmount,
				OccurredAt: o.CreatedAt,
			})
		}
	}

	var scans []models.ReferralScan
	if err := db.Where("owner_id = ? AND referral_type = ?", id, recipient).
		Order("created_at DESC").
		Limit(recentActivityLimit).
		Find(&scans).Error; err != nil {
		return nil, fmt.Errorf("error loading scans: %w", err)
	}
	for _, sc := range scans {
		activity = append(activity, Activity{Kind: ActivityScan, Code: sc.Code, OccurredAt: sc.CreatedAt})
	}

	sort.SliceStable(activity, func(i, j int) bool {
		return activity[i].OccurredAt.After(activity[j].OccurredAt)
	})
	if len(activity) > recentActivityLimit {
		activity = activity[:recentActivityLimit]
	}
	if activity != nil {
		out.RecentActivity = activity
	}

	out.SignupRate = percentOf(out.Signups, out.Scans)
	out.ConversionRate = percentOf(out.Purchases, out.Scans)
	return out, nil
}

// PartnerTotal is one row of the partner leaderboard.
type PartnerTotal struct {
	PartnerID    uuid.UUID `json:"partner_id"`
	BusinessName string    `json:"business_name"`
	PartnerType  string    `json:"partner_type"`
	Orders       int64     `json:"orders"`
	Commission   int64     `json:"commission"`
}

// Overview is the admin back-office rollup.
type Overview struct {
	Customers         int64            `json:"customers"`
	Partners          int64            `json:"partners"`
	Orders            int64            `json:"orders"`
	ReferredOrders    int64            `json:"referred_orders"`
	Revenue           int64            `json:"revenue"`
	ReferredRevenue   int64            `json:"referred_revenue"`
	DiscountsGiven    int64            `json:"discounts_given"`
	ReferredShare     float64          `json:"referred_share"`
	PartnerCommission CommissionTotals `json:"partner_commissions"`
	CustomerCredit    CommissionTotals `json:"customer_credits"`
	OutstandingCredit int64            `json:"outstanding_credit"`
	TopPartners       []PartnerTotal   `json:"top_partners"`
}

// AdminOverview summarises the whole referral programme.
func (s *Service) AdminOverview(ctx context.Context) (*Overview, error) {
	db := s.db.WithContext(ctx)
	out := &Overview{TopPartners: []PartnerTotal{}}

	if err := db.Model(&models.Customer{}).Count(&out.Customers).Error; err != nil {
		return nil, fmt.Errorf("error counting customers: %w", err)
	}
	if err := db.Model(&models.Partner{}).Count(&out.Partners).Error; err != nil {
		return nil, fmt.Errorf("error counting partners: %w", err)
	}

	var orders []struct {
		Referred bool
		Count    int64
		Revenue  int64
		Discount int64
	}
	if err := db.Model(&models.Order{}).
		Select("(referral_code IS NOT NULL AND referral_code <> '') AS referred, COUNT(*) AS count, " +
			"COALESCE(SUM(subtotal_amount), 0) AS revenue, COALESCE(SUM(discount_amount), 0) AS discount").
		Where("status IN ?", models.RevenueStatuses).
		Group("referred").
		Scan(&orders).Error; err != nil {
		return nil, fmt.Errorf("error summing orders: %w", err)
	}
	for _, o := range orders {
		out.Orders += o.Count
		out.Revenue += o.Revenue
		if o.Referred {
			out.ReferredOrders += o.Count
			out.ReferredRevenue += o.Revenue
			out.DiscountsGiven += o.Discount
		}
	}
	out.ReferredShare = percentOf(out.ReferredRevenue, out.Revenue)

	var commissions []struct {
		RecipientType models.RecipientType
		Status        models.CommissionStatus
		Total         int64
	}
	if err := db.Model(&models.Commission{}).
		Select("recipient_type, status, COALESCE(SUM(commission_amount), 0) AS total").
		Group("recipient_type, status").
		Scan(&commissions).Error; err != nil {
		return nil, fmt.Errorf("error summing commissions: %w", err)
	}
	for _, c := range commissions {
		if c.RecipientType == models.RecipientPartner {
			out.PartnerCommission.add(c.Status, c.Total)
		} else {
			out.CustomerCredit.add(c.Status, c.Total)
		}
	}

	if err := db.Model(&models.Customer{}).
		Select("COALESCE(SUM(credit_balance), 0)").
		Scan(&out.OutstandingCredit).Error; err != nil {
		return nil, fmt.Errorf("error summing credit balances: %w", err)
	}

	if err := db.Table("commissions").
		Select("partners.id AS partner_id, partners.business_name, partners.partner_type, "+
			"COUNT(commissions.id) AS orders, COALESCE(SUM(commissions.commission_amount), 0) AS commission").
		Joins("JOIN partners ON partners.id = commissions.recipient_id").
		Where("commissions.recipient_type = ?", models.RecipientPartner).
		Group("partners.id, partners.business_name, partners.partner_type").
		Order("commission DESC").
		Limit(5).
		Scan(&out.TopPartners).Error; err != nil {
		return nil, fmt.Errorf("error ranking partners: %w", err)
	}

	return out, nil
}
