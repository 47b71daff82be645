package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sojourn-loans/sojourn/internal/timeline"
)

func TestScheduleHTML(t *testing.T) {
	data := ScheduleData{
		BorrowerName:   "Kofi Boateng",
		PhoneNumber:    "233241234567",
		LoanAmount:     3000,
		MonthlyPayment: 1000,
		TotalPaid:      1000,
		Balance:        2000,
		Status:         "Delayed",
		GeneratedAt:    time.Date(2026, time.February, 20, 10, 0, 0, 0, time.UTC),
		Entries: []timeline.Entry{
			{StepNumber: 1, Date: time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC), Amount: 1000, Status: timeline.StatusCompleted, Kind: timeline.KindActual, RecordedBy: "Ama"},
			{StepNumber: 2, Date: time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC), Amount: 1000, Status: timeline.StatusOverdue, Kind: timeline.KindScheduled},
			{StepNumber: 3, Date: time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), Amount: 1000, Status: timeline.StatusPending, Kind: timeline.KindScheduled},
		},
	}

	html, err := ScheduleHTML(data)
	require.NoError(t, err)

	require.Contains(t, html, "Kofi Boateng")
	require.Contains(t, html, "GHS 3,000.00")
	require.Contains(t, html, "GHS 1,000.00")
	require.Contains(t, html, "15 Jan 2026")
	require.Contains(t, html, `class="overdue"`)
	require.Contains(t, html, "Generated 20 Feb 2026")
}

func TestScheduleHTMLEscapesUserContent(t *testing.T) {
	html, err := ScheduleHTML(ScheduleData{
		BorrowerName: "<script>alert(1)</script>",
		GeneratedAt:  time.Now(),
	})
	require.NoError(t, err)
	require.NotContains(t, html, "<script>alert(1)</script>")
}
