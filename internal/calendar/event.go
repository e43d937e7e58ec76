// Package calendar fetches economic calendar events for a date window.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the dd/mm/yyyy form providers accept and events carry.
const DateLayout = "02/01/2006"

// AllDay replaces the time of day for events without one.
const AllDay = "All Day"

var ErrInvalidRange = errors.New("calendar: to date must be after from date")

type Importance string

const (
	Low    Importance = "low"
	Medium Importance = "medium"
	High   Importance = "high"
)

// Event is one calendar row. Optional fields are nil when the source left
// them blank.
type Event struct {
	ID         string      `yaml:"id"`
	Date       string      `yaml:"date"`
	Time       string      `yaml:"time"`
	Zone       string      `yaml:"zone"`
	Currency   *string     `yaml:"currency,omitempty"`
	Importance *Importance `yaml:"importance,omitempty"`
	Event      string      `yaml:"event"`
	Actual     *string     `yaml:"actual,omitempty"`
	Forecast   *string     `yaml:"forecast,omitempty"`
	Previous   *string     `yaml:"previous,omitempty"`
}

// ParseRange validates a dd/mm/yyyy pair.
func ParseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %q: %w", ErrInvalidRange, from, err)
	}
	end, err := time.Parse(DateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to %q: %w", ErrInvalidRange, to, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w (%s to %s)", ErrInvalidRange, from, to)
	}
	return start, end, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func importanceFromBulls(n string) *Importance {
	var imp Importance
	switch n {
	case "1":
		imp = Low
	case "2":
		imp = Medium
	case "3":
		imp = High
	default:
		return nil
	}
	return &imp
}
