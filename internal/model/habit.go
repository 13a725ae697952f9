package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used in HabitRecord.Date ("2025-03-18").
const DateLayout = "2006-01-02"

// HabitType identifies one of the trackable habits.
type HabitType string

const (
	HabitSleep       HabitType = "sleep"
	HabitSmoothie    HabitType = "smoothie"
	HabitExercise    HabitType = "exercise"
	HabitSocialMedia HabitType = "social_media"
)

// CreditAction is the direction of a habit record.
type CreditAction string

const (
	ActionEarn CreditAction = "earn"
	ActionLose CreditAction = "lose"
)

// HabitRecord is one entry in a user's habit log.
//
// The log is append-only from the application's point of view, with one
// exception: unclaiming removes the matching earn record instead of appending
// a negative entry.
type HabitRecord struct {
	Date    string       `json:"date"`
	Habit   HabitType    `json:"habit"`
	Action  CreditAction `json:"action"`
	Credits int          `json:"credits"`
	Notes   string       `json:"notes,omitempty"`
}

// HabitDefinition describes how much a habit is worth and how often it can be
// claimed on the same day.
type HabitDefinition struct {
	ID        HabitType `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Credits   int       `json:"credits"`
	MaxPerDay int       `json:"maxPerDay"`
}

// Habits is the fixed habit catalog, in display order.
var Habits = []HabitDefinition{
	{ID: HabitSleep, Name: "Sleep 8 Hours", Icon: "😴", Credits: 2, MaxPerDay: 1},
	{ID: HabitSmoothie, Name: "Drink Green Smoothie", Icon: "🥤", Credits: 1, MaxPerDay: 1},
	{ID: HabitExercise, Name: "30 Minutes Walk", Icon: "🚶", Credits: 2, MaxPerDay: 6},
	{ID: HabitSocialMedia, Name: "Less Than 1hr Social Media", Icon: "📱", Credits: 1, MaxPerDay: 1},
}

// LookupHabit returns the catalog entry for h.
func LookupHabit(h HabitType) (HabitDefinition, bool) {
	for _, def := range Habits {
		if def.ID == h {
			return def, true
		}
	}
	return HabitDefinition{}, false
}

// ParseDay parses a "YYYY-MM-DD" calendar day.
func ParseDay(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}
