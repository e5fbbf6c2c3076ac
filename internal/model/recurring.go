package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Frequency is how often a recurring template repeats.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// DefaultMaxOccurrences caps a series when the template does not set one.
const DefaultMaxOccurrences = 12

// RecurringConfig is attached to a template event. It is never attached to a
// generated instance.
type RecurringConfig struct {
	Active         bool       `json:"active"`
	Frequency      Frequency  `json:"frequency"`
	DaysOfWeek     []int      `json:"days_of_week,omitempty"`
	MaxOccurrences int        `json:"max_occurrences,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Timezone       string     `json:"timezone,omitempty"`
}

// EffectiveMaxOccurrences applies DefaultMaxOccurrences to an unset cap.
func (c RecurringConfig) EffectiveMaxOccurrences() int {
	if c.MaxOccurrences <= 0 {
		return DefaultMaxOccurrences
	}
	return c.MaxOccurrences
}

// UnmarshalJSON defaults Active to true when the key is absent, matching
// documents written before the flag existed.
func (c *RecurringConfig) UnmarshalJSON(data []byte) error {
	type plain RecurringConfig
	aux := struct {
		Active *bool `json:"active"`
		*plain
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Active = aux.Active == nil || *aux.Active
	return nil
}

// Value stores the config as a JSON document column.
func (c RecurringConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads the config from a JSON document column.
func (c *RecurringConfig) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.New("recurring config: unsupported column type")
	}
}
