package services

import (
	"context"
	"fmt"
	"time"

	"contributi/internal/authz"
	"contributi/internal/core"
	"contributi/internal/storage"
)

// DashboardService computes the aggregate figures shown on the group
// dashboard. All sums bucket rows by their record-creation timestamp, not by
// the contribution date, so a backdated entry counts toward the year it was
// recorded in.
type DashboardService struct {
	storage *storage.SQLiteRepository
}

func NewDashboardService(storage *storage.SQLiteRepository) *DashboardService {
	return &DashboardService{storage: storage}
}

// Stats is the full dashboard payload for one member.
type Stats struct {
	MemberYearToDateCents int64
	WithdrawableCents     int64
	RetainedShareCents    int64
	GroupYearToDateCents  int64
	CurrentMonth          []storage.MemberTotal
	MonthlyTotalsCents    [12]int64
	CumulativeTotalsCents [12]int64
}

// Stats assembles the dashboard for the actor at the given instant. The
// caller supplies now so the figures are reproducible in tests.
func (s *DashboardService) Stats(ctx context.Context, actor *core.Member, now time.Time) (*Stats, error) {
	if !authz.CanViewAny(actor) {
		return nil, core.ErrForbidden
	}

	year := now.Year()
	period := core.PeriodOf(now)

	memberYTD, err := s.storage.SumMemberYearCents(ctx, actor.ID, year)
	if err != nil {
		return nil, fmt.Errorf("member year to date: %w", err)
	}

	allTime, err := s.storage.SumMemberAllTimeCents(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("member all time: %w", err)
	}

	groupYTD, err := s.storage.SumGroupYearCents(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("group year to date: %w", err)
	}

	currentMonth, err := s.storage.MemberTotalsForMonth(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("current month breakdown: %w", err)
	}

	monthly, err := s.storage.MonthlyTotalsForYear(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}

	return &Stats{
		MemberYearToDateCents: memberYTD,
		WithdrawableCents:     core.Money{Cents: memberYTD}.Half().Cents,
		RetainedShareCents:    core.Money{Cents: allTime}.Half().Cents,
		GroupYearToDateCents:  groupYTD,
		CurrentMonth:          currentMonth,
		MonthlyTotalsCents:    monthly,
		CumulativeTotalsCents: Cumulative(monthly),
	}, nil
}

// Cumulative returns the running prefix sum of a 12-month series.
func Cumulative(monthly [12]int64) [12]int64 {
	var out [12]int64
	var running int64
	for i, v := range monthly {
		running += v
		out[i] = running
	}
	return out
}
