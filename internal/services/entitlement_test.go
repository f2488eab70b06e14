package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"timekill-backend/internal/models"
)

type fakeSubs struct {
	sub *models.Subscription
	err error
}

func (f *fakeSubs) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

type fakeLedger struct {
	used    int
	usedErr error
	added   int
}

func (f *fakeLedger) WeeklyCreditsUsed(ctx context.Context, userID uuid.UUID, isoYear, isoWeek int) (int, error) {
	if f.usedErr != nil {
		return 0, f.usedErr
	}
	return f.used, nil
}

func (f *fakeLedger) AddWeeklyCredits(ctx context.Context, userID uuid.UUID, isoYear, isoWeek, credits int) error {
	f.added += credits
	return nil
}

func newEntitlements(sub *models.Subscription, subErr error, used int) (*EntitlementService, *fakeLedger) {
	ledger := &fakeLedger{used: used}
	svc := NewEntitlementService(&fakeSubs{sub: sub, err: subErr}, ledger, models.DefaultPlanLimits())
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc, ledger
}

func TestPlanFor(t *testing.T) {
	tests := []struct {
		name     string
		sub      *models.Subscription
		subErr   error
		expected string
	}{
		{"no subscription row", nil, pgx.ErrNoRows, models.PlanFree},
		{"active pro", &models.Subscription{Status: "active", Plan: "pro"}, nil, models.PlanPro},
		{"active power", &models.Subscription{Status: "active", Plan: "power"}, nil, models.PlanPower},
		{"canceled pro degrades", &models.Subscription{Status: "canceled", Plan: "pro"}, nil, models.PlanFree},
		{"past_due power degrades", &models.Subscription{Status: "past_due", Plan: "power"}, nil, models.PlanFree},
		{"active unknown plan degrades", &models.Subscription{Status: "active", Plan: "legacy"}, nil, models.PlanFree},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newEntitlements(tc.sub, tc.subErr, 0)
			plan, err := svc.PlanFor(context.Background(), uuid.New())
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if plan != tc.expected {
				t.Errorf("Expected plan %q, got %q", tc.expected, plan)
			}
		})
	}
}

func TestCreditsForText(t *testing.T) {
	tests := []struct {
		length   int
		expected int
	}{
		{0, 1},
		{1, 1},
		{500, 1},
		{501, 2},
		{1000, 2},
		{1001, 3},
	}

	for _, tc := range tests {
		text := strings.Repeat("a", tc.length)
		if got := CreditsForText(text); got != tc.expected {
			t.Errorf("CreditsForText(len %d) = %d, expected %d", tc.length, got, tc.expected)
		}
	}
}

func TestAuthorize_DocumentTooLong(t *testing.T) {
	svc, _ := newEntitlements(nil, pgx.ErrNoRows, 0)

	// free plan caps documents at 5000 chars
	_, err := svc.Authorize(context.Background(), uuid.New(), strings.Repeat("a", 5001))

	var tooLong *DocumentTooLongError
	if !errors.As(err, &tooLong) {
		t.Fatalf("Expected *DocumentTooLongError, got %T: %v", err, err)
	}
	if tooLong.Max != 5000 {
		t.Errorf("Expected max 5000, got %d", tooLong.Max)
	}
}

func TestAuthorize_InsufficientCredits(t *testing.T) {
	// free plan has 20 credits/week; 19 used leaves 1 remaining
	svc, _ := newEntitlements(nil, pgx.ErrNoRows, 19)

	// 600 chars costs 2 credits
	_, err := svc.Authorize(context.Background(), uuid.New(), strings.Repeat("a", 600))

	var insufficient *InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected *InsufficientCreditsError, got %T: %v", err, err)
	}
	if insufficient.Remaining != 1 {
		t.Errorf("Expected 1 remaining, got %d", insufficient.Remaining)
	}
	if insufficient.Requested != 2 {
		t.Errorf("Expected 2 requested, got %d", insufficient.Requested)
	}
}

func TestAuthorize_ExactHeadroomPasses(t *testing.T) {
	svc, _ := newEntitlements(nil, pgx.ErrNoRows, 18)

	credits, err := svc.Authorize(context.Background(), uuid.New(), strings.Repeat("a", 600))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if credits != 2 {
		t.Errorf("Expected 2 credits, got %d", credits)
	}
}

func TestAuthorize_UnlimitedSkipsLedger(t *testing.T) {
	sub := &models.Subscription{Status: "active", Plan: "power"}
	// absurd usage should not matter on an unlimited tier
	svc, _ := newEntitlements(sub, nil, 1_000_000)

	credits, err := svc.Authorize(context.Background(), uuid.New(), strings.Repeat("a", 2000))
	if err != nil {
		t.Fatalf("Unexpected error on unlimited plan: %v", err)
	}
	if credits != 4 {
		t.Errorf("Expected 4 credits, got %d", credits)
	}
}

func TestAuthorize_LedgerErrorFailsClosed(t *testing.T) {
	ledgerErr := errors.New("connection refused")
	ledger := &fakeLedger{usedErr: ledgerErr}
	svc := NewEntitlementService(&fakeSubs{err: pgx.ErrNoRows}, ledger, models.DefaultPlanLimits())
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	_, err := svc.Authorize(context.Background(), uuid.New(), "some text")
	if !errors.Is(err, ledgerErr) {
		t.Fatalf("Expected ledger error surfaced, got %v", err)
	}
}

func TestConsume_DebitsLedger(t *testing.T) {
	svc, ledger := newEntitlements(nil, pgx.ErrNoRows, 0)

	if err := svc.Consume(context.Background(), uuid.New(), 3); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ledger.added != 3 {
		t.Errorf("Expected 3 credits debited, got %d", ledger.added)
	}
}
