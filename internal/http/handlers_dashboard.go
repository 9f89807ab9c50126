package http

import (
	"net/http"

	"contributi/internal/core"
)

type memberTotalResponse struct {
	MemberID   int64  `json:"member_id"`
	Name       string `json:"name"`
	Total      string `json:"total"`
	TotalCents int64  `json:"total_cents"`
}

type dashboardResponse struct {
	MemberYearToDate      string                `json:"member_year_to_date"`
	MemberYearToDateCents int64                 `json:"member_year_to_date_cents"`
	Withdrawable          string                `json:"withdrawable"`
	WithdrawableCents     int64                 `json:"withdrawable_cents"`
	RetainedShare         string                `json:"retained_share"`
	RetainedShareCents    int64                 `json:"retained_share_cents"`
	GroupYearToDate       string                `json:"group_year_to_date"`
	GroupYearToDateCents  int64                 `json:"group_year_to_date_cents"`
	CurrentMonth          []memberTotalResponse `json:"current_month"`
	MonthlyTotalsCents    [12]int64             `json:"monthly_totals_cents"`
	CumulativeTotalsCents [12]int64             `json:"cumulative_totals_cents"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	stats, err := s.dashboard.Stats(r.Context(), actorFrom(r.Context()), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	currentMonth := make([]memberTotalResponse, 0, len(stats.CurrentMonth))
	for _, mt := range stats.CurrentMonth {
		currentMonth = append(currentMonth, memberTotalResponse{
			MemberID:   mt.MemberID,
			Name:       mt.Name,
			Total:      core.FormatCents(mt.TotalCents),
			TotalCents: mt.TotalCents,
		})
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		MemberYearToDate:      core.FormatCents(stats.MemberYearToDateCents),
		MemberYearToDateCents: stats.MemberYearToDateCents,
		Withdrawable:          core.FormatCents(stats.WithdrawableCents),
		WithdrawableCents:     stats.WithdrawableCents,
		RetainedShare:         core.FormatCents(stats.RetainedShareCents),
		RetainedShareCents:    stats.RetainedShareCents,
		GroupYearToDate:       core.FormatCents(stats.GroupYearToDateCents),
		GroupYearToDateCents:  stats.GroupYearToDateCents,
		CurrentMonth:          currentMonth,
		MonthlyTotalsCents:    stats.MonthlyTotalsCents,
		CumulativeTotalsCents: stats.CumulativeTotalsCents,
	})
}
