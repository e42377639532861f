package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/resource-scheduler/internal/scheduler"
)

const timestampLayout = time.RFC3339Nano

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(column, value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return t, nil
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullableTimestamp(value *time.Time) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*value), Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func timestampPtr(column string, value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseTimestamp(column, value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type dayHoursRecord struct {
	Closed bool   `json:"closed"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

// encodeHours stores a template as a JSON object keyed by lower-case weekday name.
func encodeHours(hours scheduler.WeeklyHours) (sql.NullString, error) {
	if !hours.Defined() {
		return sql.NullString{}, nil
	}
	record := make(map[string]dayHoursRecord, len(hours))
	for day, entry := range hours {
		value := dayHoursRecord{Closed: entry.Closed}
		if !entry.Closed {
			value.Start = entry.Start.String()
			value.End = entry.End.String()
		}
		record[strings.ToLower(day.String())] = value
	}
	data, err := json.Marshal(record)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode working_hours: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeHours(value sql.NullString) (scheduler.WeeklyHours, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	var record map[string]dayHoursRecord
	if err := json.Unmarshal([]byte(value.String), &record); err != nil {
		return nil, fmt.Errorf("failed to decode working_hours: %w", err)
	}

	hours := make(scheduler.WeeklyHours, len(record))
	for name, entry := range record {
		day, ok := weekdayByName[name]
		if !ok {
			return nil, fmt.Errorf("failed to decode working_hours: unknown weekday %q", name)
		}
		decoded := scheduler.DayHours{Closed: entry.Closed}
		if !entry.Closed {
			start, err := scheduler.ParseTimeOfDay(entry.Start)
			if err != nil {
				return nil, fmt.Errorf("failed to decode working_hours %s start: %w", name, err)
			}
			end, err := scheduler.ParseTimeOfDay(entry.End)
			if err != nil {
				return nil, fmt.Errorf("failed to decode working_hours %s end: %w", name, err)
			}
			decoded.Start, decoded.End = start, end
		}
		hours[day] = decoded
	}
	return hours, nil
}

var weekdayByName = func() map[string]time.Weekday {
	out := make(map[string]time.Weekday, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		out[strings.ToLower(day.String())] = day
	}
	return out
}()

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
