package db

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a history row does not exist.
var ErrNotFound = errors.New("db: history not found")

// History is one persisted detection outcome. Input rejections are never
// written; only completed runs and system faults reach this table.
type History struct {
	ID            int64          `db:"id"`
	UserID        string         `db:"user_id"`
	InputText     string         `db:"input_text"`
	TopScore      float64        `db:"top_score"`
	Status        string         `db:"status"`
	DetectionType string         `db:"detection_type"`
	MatchedCaseID sql.NullString `db:"matched_case_id"`
	DetectedAt    time.Time      `db:"detected_at"`
}

// Period filters history listings by age.
type Period string

const (
	PeriodToday       Period = "today"
	PeriodWeek        Period = "week"
	PeriodThreeMonths Period = "3months"
	PeriodAll         Period = "all"
)

// ParsePeriod validates a period string; empty means all.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodToday, PeriodWeek, PeriodThreeMonths, PeriodAll:
		return Period(s), nil
	case "":
		return PeriodAll, nil
	default:
		return "", errors.New("db: unknown period " + s)
	}
}

// Start returns the inclusive lower bound for the period relative to now.
// The second return is false when the period is unbounded.
func (p Period) Start(now time.Time) (time.Time, bool) {
	switch p {
	case PeriodToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case PeriodWeek:
		return now.AddDate(0, 0, -7), true
	case PeriodThreeMonths:
		return now.AddDate(0, -3, 0), true
	default:
		return time.Time{}, false
	}
}
