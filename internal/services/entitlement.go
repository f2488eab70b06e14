package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"timekill-backend/internal/models"
)

// charsPerCredit converts input length into billing credits: one credit per
// started 500 characters.
const charsPerCredit = 500

type subscriptionReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

type usageLedger interface {
	WeeklyCreditsUsed(ctx context.Context, userID uuid.UUID, isoYear, isoWeek int) (int, error)
	AddWeeklyCredits(ctx context.Context, userID uuid.UUID, isoYear, isoWeek, credits int) error
}

// EntitlementService is the plan-tier quota layer, independent of the daily
// redis counters: both gates must pass.
type EntitlementService struct {
	subs   subscriptionReader
	ledger usageLedger
	limits map[string]models.PlanLimits
	now    func() time.Time
}

func NewEntitlementService(subs subscriptionReader, ledger usageLedger, limits map[string]models.PlanLimits) *EntitlementService {
	return &EntitlementService{
		subs:   subs,
		ledger: ledger,
		limits: limits,
		now:    time.Now,
	}
}

// PlanFor resolves a user's effective tier. Only an active subscription with
// a recognized paid plan counts; everything else degrades to free.
func (s *EntitlementService) PlanFor(ctx context.Context, userID uuid.UUID) (string, error) {
	sub, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PlanFree, nil
		}
		return "", err
	}

	if sub.Status != "active" {
		return models.PlanFree, nil
	}

	switch sub.Plan {
	case models.PlanPro, models.PlanPower:
		return sub.Plan, nil
	default:
		return models.PlanFree, nil
	}
}

func (s *EntitlementService) LimitsFor(plan string) models.PlanLimits {
	if limits, ok := s.limits[plan]; ok {
		return limits
	}
	return s.limits[models.PlanFree]
}

// CreditsForText converts input length into credits, minimum one.
func CreditsForText(text string) int {
	credits := (len(text) + charsPerCredit - 1) / charsPerCredit
	if credits < 1 {
		credits = 1
	}
	return credits
}

// Authorize checks document length and weekly credit headroom before any
// expensive work. Returns the credit cost of the request.
func (s *EntitlementService) Authorize(ctx context.Context, userID uuid.UUID, text string) (int, error) {
	plan, err := s.PlanFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	limits := s.LimitsFor(plan)

	if !models.IsUnlimited(limits.MaxDocumentLength) && len(text) > limits.MaxDocumentLength {
		return 0, &DocumentTooLongError{Length: len(text), Max: limits.MaxDocumentLength}
	}

	credits := CreditsForText(text)

	// Unlimited tiers skip the ledger entirely.
	if models.IsUnlimited(limits.HumanizerCreditsPerWeek) {
		return credits, nil
	}

	year, week := s.now().UTC().ISOWeek()
	used, err := s.ledger.WeeklyCreditsUsed(ctx, userID, year, week)
	if err != nil {
		return 0, err
	}

	remaining := limits.HumanizerCreditsPerWeek - used
	if remaining < 0 {
		remaining = 0
	}
	if credits > remaining {
		return 0, &InsufficientCreditsError{Requested: credits, Remaining: remaining}
	}

	return credits, nil
}

// Consume debits the weekly ledger after a successful run.
func (s *EntitlementService) Consume(ctx context.Context, userID uuid.UUID, credits int) error {
	year, week := s.now().UTC().ISOWeek()
	return s.ledger.AddWeeklyCredits(ctx, userID, year, week, credits)
}
