// Package domain contains the in-memory subscription ledger model.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DateLayout is the ISO 8601 calendar date format used for expiry dates.
const DateLayout = "2006-01-02"

// Date is a UTC calendar date with day precision.
type Date struct {
	t time.Time
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return Date{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func ParseDate(value string) (Date, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return DateOf(t), nil
}

// AddMonths increments the month component and lets time.AddDate normalize
// overflowing days, so Jan 31 + 1 month is Mar 3 (Mar 2 in leap years).
func (d Date) AddMonths(months int) Date {
	return Date{t: d.t.AddDate(0, months, 0)}
}

// After reports whether the start of the date lies strictly after t.
func (d Date) After(t time.Time) bool {
	return d.t.After(t)
}

func (d Date) Time() time.Time { return d.t }

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) String() string {
	return d.t.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	parsed, err := ParseDate(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Subscription is the ledger record kept for one subscriber identifier.
type Subscription struct {
	ID           snowflake.ID `json:"id"`
	SubscriberID string       `json:"subscriber_id"`
	Subscribed   bool         `json:"subscribed"`
	ExpiryDate   Date         `json:"expiry_date"`
	Balance      float64      `json:"balance"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// CheckStatus is the outcome of observing a subscription against the clock.
type CheckStatus string

const (
	CheckStatusActive  CheckStatus = "ACTIVE"
	CheckStatusExpired CheckStatus = "EXPIRED"
)

type CheckResult struct {
	Subscription Subscription
	Status       CheckStatus
}
