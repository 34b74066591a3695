package recurring

import (
	"time"

	"github.com/rocjay1/rm-recurring/internal/models"
)

// NextDueDate returns the occurrence after current for the given frequency.
//
// Month-based frequencies move by whole calendar months. The day of month is
// the anchor day when one is set, otherwise the current day, and it is
// clamped down to the last day of the target month: an anchor of 31 yields
// Feb 28 (or 29) and then Mar 31. Without an anchor the clamped day carries
// forward, so Jan 31 becomes Feb 28 and then Mar 28.
//
// The anchor is ignored for daily and weekly schedules. An unknown frequency
// advances by one day.
func NextDueDate(current models.Date, freq models.Frequency, anchorDay *int) models.Date {
	switch freq {
	case models.FrequencyDaily:
		return current.AddDays(1)
	case models.FrequencyWeekly:
		return current.AddDays(7)
	}

	step := freq.MonthStep()
	if step == 0 {
		return current.AddDays(1)
	}
	return addMonthsClamped(current, step, anchorDay)
}

func addMonthsClamped(d models.Date, months int, anchorDay *int) models.Date {
	index := int(d.Month()) - 1 + months
	year := d.Year() + index/12
	month := time.Month(index%12 + 1)

	day := d.Day()
	if anchorDay != nil {
		day = *anchorDay
	}
	if last := models.DaysIn(year, month); day > last {
		day = last
	}
	return models.NewDate(year, month, day)
}
