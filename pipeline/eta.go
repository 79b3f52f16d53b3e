package pipeline

import (
	"time"

	"cloud.google.com/go/civil"
)

// estimator computes an estimated-time-remaining the same way the archive
// downloader's _calculate_etr does: extrapolate a total runtime from the
// elapsed time and the fraction of the date range completed so far, then
// subtract elapsed to get a remaining duration. fileIndex/fileCount let the
// estimate account for partial progress within the current day, the same
// way the original accounts for partial progress within the current can via
// can_num/can_tot_count.
type estimator struct {
	t0       time.Time
	startDay civil.Date
	stopDay  civil.Date
}

func newEstimator(t0 time.Time, startDay, stopDay civil.Date) *estimator {
	return &estimator{t0: t0, startDay: startDay, stopDay: stopDay}
}

// Update returns the estimated time remaining given that, as of now, the
// pipeline has dispatched fileIndex (0-based) of fileCount files scheduled
// for day.
func (e *estimator) Update(now time.Time, day civil.Date, fileIndex, fileCount int) time.Duration {
	if fileCount <= 0 {
		return 0
	}
	totalDays := float64(e.stopDay.DaysSince(e.startDay))
	if totalDays <= 0 {
		return 0
	}
	elapsed := now.Sub(e.t0).Seconds()
	daysDone := float64(day.DaysSince(e.startDay))
	fractionOfDayDone := float64(fileIndex+1) / float64(fileCount)
	denom := daysDone + fractionOfDayDone
	if denom <= 0 {
		return 0
	}
	etr := elapsed * totalDays / denom
	remaining := etr - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining * float64(time.Second))
}
