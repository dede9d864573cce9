package domain

import "time"

// AddBusinessDays advances from by n weekdays, skipping Saturdays and
// Sundays. Public holidays are not considered.
func AddBusinessDays(from time.Time, n int) time.Time {
	d := from
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		n--
	}
	return d
}
