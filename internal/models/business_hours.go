package models

import "time"

// DayOfWeek values, Monday first
const (
	Monday    = "MONDAY"
	Tuesday   = "TUESDAY"
	Wednesday = "WEDNESDAY"
	Thursday  = "THURSDAY"
	Friday    = "FRIDAY"
	Saturday  = "SATURDAY"
	Sunday    = "SUNDAY"
)

// DaysOrder is the week as the schedule is presented to merchants.
var DaysOrder = []string{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// BusinessHours is one day of a merchant's weekly schedule
type BusinessHours struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MerchantID      string    `json:"merchant_id" gorm:"uniqueIndex:idx_business_hours_merchant_day;not null"`
	DayOfWeek       string    `json:"day_of_week" gorm:"uniqueIndex:idx_business_hours_merchant_day;type:varchar(16);not null"`
	IsEnabled       bool      `json:"is_enabled"`
	OpenTime        string    `json:"open_time"`  // "HH:MM"
	CloseTime       string    `json:"close_time"` // "HH:MM"
	CrossesMidnight bool      `json:"crosses_midnight"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DayFromWeekday maps a time.Weekday to the schedule's day name.
func DayFromWeekday(w time.Weekday) string {
	if w == time.Sunday {
		return Sunday
	}
	return DaysOrder[int(w)-1]
}
