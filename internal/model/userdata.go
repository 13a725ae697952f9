package model

// UserData is the per-user aggregate stored at userData:{id}: the credit
// balance, the habit log and the user's own copy of the rewards list.
type UserData struct {
	TotalCredits int           `json:"totalCredits"`
	Habits       []HabitRecord `json:"habits"`
	Rewards      []Reward      `json:"rewards"`
}

// EmptyUserData returns {0, [], []}. The slices are non-nil so they encode as
// [] rather than null.
func EmptyUserData() *UserData {
	return &UserData{
		TotalCredits: 0,
		Habits:       []HabitRecord{},
		Rewards:      []Reward{},
	}
}

// Normalize replaces nil slices and clamps a negative balance to zero.
// Stored blobs written by older clients sometimes have "habits": null.
func (d *UserData) Normalize() {
	if d.Habits == nil {
		d.Habits = []HabitRecord{}
	}
	if d.Rewards == nil {
		d.Rewards = []Reward{}
	}
	if d.TotalCredits < 0 {
		d.TotalCredits = 0
	}
}

// CountEarned returns how many earn records exist for habit on date.
func (d *UserData) CountEarned(habit HabitType, date string) int {
	n := 0
	for _, rec := range d.Habits {
		if rec.Habit == habit && rec.Date == date && rec.Action == ActionEarn {
			n++
		}
	}
	return n
}

// FindReward returns the index of the user's reward with the given id, or -1.
func (d *UserData) FindReward(id string) int {
	for i, r := range d.Rewards {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// CategoryTotal is the credit sum and record count for one habit type.
type CategoryTotal struct {
	Category     HabitType `json:"category"`
	TotalCredits int       `json:"totalCredits"`
	Count        int       `json:"count"`
}

// MonthlyTotal holds per-habit credit sums for one calendar month ("2025-03").
type MonthlyTotal struct {
	Month   string            `json:"month"`
	Credits map[HabitType]int `json:"credits"`
}

// Stats is the summary shown on the admin dashboard.
type Stats struct {
	TotalCredits int             `json:"totalCredits"`
	Categories   []CategoryTotal `json:"categories"`
	Monthly      []MonthlyTotal  `json:"monthly"`
}
