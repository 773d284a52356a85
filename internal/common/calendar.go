// Package common provides shared utilities across the application.
package common

import "time"

// US equity market trading calendar helpers. Weekends are always closed;
// exchange holidays come from the caller so the list can live in config.

// IsTradingDay checks if a given date is a trading day.
// It accounts for both weekends and the supplied holidays.
func IsTradingDay(t time.Time, holidays []time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	for _, h := range holidays {
		if sameDate(t, h) {
			return false
		}
	}
	return true
}

// LastTradingDay returns the most recent trading day at or before t.
func LastTradingDay(t time.Time, holidays []time.Time) time.Time {
	day := dateOnly(t)
	for !IsTradingDay(day, holidays) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// PreviousTradingDay returns the trading day strictly before t. This is
// the reference date for prior-day cache substitution.
func PreviousTradingDay(t time.Time, holidays []time.Time) time.Time {
	return LastTradingDay(dateOnly(t).AddDate(0, 0, -1), holidays)
}

// NextTradingDay returns the first trading day strictly after t.
func NextTradingDay(t time.Time, holidays []time.Time) time.Time {
	day := dateOnly(t).AddDate(0, 0, 1)
	for !IsTradingDay(day, holidays) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// TradingDaysBetween counts trading days in (from, to]. Returns 0 when
// to is not after from.
func TradingDaysBetween(from, to time.Time, holidays []time.Time) int {
	count := 0
	day := dateOnly(from).AddDate(0, 0, 1)
	end := dateOnly(to)
	for !day.After(end) {
		if IsTradingDay(day, holidays) {
			count++
		}
		day = day.AddDate(0, 0, 1)
	}
	return count
}

// CacheAgeAcceptable reports whether a cached value from cacheDate may
// still substitute for asOf under the max-stale-days policy. The window
// counts trading days, so a Monday run accepts Friday's cache at one
// day's distance.
func CacheAgeAcceptable(cacheDate, asOf time.Time, maxStaleDays int, holidays []time.Time) bool {
	if maxStaleDays <= 0 {
		return false
	}
	if !cacheDate.Before(dateOnly(asOf)) {
		return true
	}
	return TradingDaysBetween(cacheDate, asOf, holidays) <= maxStaleDays
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
