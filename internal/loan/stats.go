package loan

// DashboardStats summarises the admin dashboard header cards.
type DashboardStats struct {
	TotalBorrowers int     `json:"totalBorrowers"`
	ActiveLoans    int     `json:"activeLoans"`
	TotalDisbursed float64 `json:"totalDisbursed"`
	OverdueToday   int     `json:"overdueToday"`
}

// ComputeDashboardStats reduces one page of the borrower listing into
// dashboard figures. TotalBorrowers is the backend-reported population
// total; the remaining counts and the disbursed sum cover only the
// supplied page, matching the dashboard they feed.
func ComputeDashboardStats(totalBorrowers int, page []BorrowerSummary) DashboardStats {
	stats := DashboardStats{TotalBorrowers: totalBorrowers}
	for _, b := range page {
		if b.Status != StatusCompleted {
			stats.ActiveLoans++
		}
		if b.Status == StatusDelayed {
			stats.OverdueToday++
		}
		stats.TotalDisbursed += b.LoanAmount
	}
	return stats
}
