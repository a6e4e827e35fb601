package market

import "time"

// Select picks the market to track from the current candidates: the live
// market ending soonest, or failing that the upcoming market ending
// soonest. Candidates with a zero end time (the venue's date did not
// parse) or an end time already behind now never qualify. Ties keep the
// first candidate seen, so repeated calls over a stable list are stable.
//
// A nil result means no trackable market exists right now, which is a
// normal state between windows, not a failure.
func Select(candidates []Market, now time.Time) *Market {
	var live, upcoming *Market

	for i := range candidates {
		m := &candidates[i]
		if m.EndTime.IsZero() || !m.EndTime.After(now) {
			continue
		}
		if m.Live(now) {
			if live == nil || m.EndTime.Before(live.EndTime) {
				live = m
			}
		} else if m.Upcoming(now) {
			if upcoming == nil || m.EndTime.Before(upcoming.EndTime) {
				upcoming = m
			}
		}
	}

	if live != nil {
		picked := *live
		return &picked
	}
	if upcoming != nil {
		picked := *upcoming
		return &picked
	}
	return nil
}
