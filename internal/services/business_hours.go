package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Ananth-NQI/orderline-backend/internal/models"
	"github.com/Ananth-NQI/orderline-backend/internal/storage"
)

const minutesPerDay = 24 * 60

// Spanish day names used in customer-facing messages
var dayNamesES = map[string]string{
	models.Monday:    "lunes",
	models.Tuesday:   "martes",
	models.Wednesday: "miércoles",
	models.Thursday:  "jueves",
	models.Friday:    "viernes",
	models.Saturday:  "sábado",
	models.Sunday:    "domingo",
}

const merchantNotFoundMessage = "Comercio no encontrado"

// HoursStatus is the outcome of the business-hours gate.
type HoursStatus struct {
	ShouldRespond bool        `json:"should_respond"`
	Message       string      `json:"message,omitempty"`
	NextOpen      *NextWindow `json:"next_open,omitempty"`
}

// NextWindow is the next time the merchant opens.
type NextWindow struct {
	Day              string `json:"day"`
	OpenTime         string `json:"open_time"`
	CloseTime        string `json:"close_time"`
	CrossesMidnight  bool   `json:"crosses_midnight"`
	MinutesUntilOpen int    `json:"minutes_until_open"`
}

type dayWindow struct {
	row   *models.BusinessHours
	open  int
	close int
}

// CheckBusinessHours decides whether the bot should answer at now.
// A merchant without schedule rows is always open.
func CheckBusinessHours(now time.Time, loc *time.Location, rows []*models.BusinessHours) HoursStatus {
	if len(rows) == 0 {
		return HoursStatus{ShouldRespond: true}
	}
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	nowMin := local.Hour()*60 + local.Minute()
	today := models.DayFromWeekday(local.Weekday())
	todayIdx := dayIndex(today)

	windows := indexWindows(rows)

	todayWin, hasToday := windows[today]
	if hasToday && todayWin.row.IsEnabled && inRange(nowMin, todayWin.open, todayWin.close, todayWin.row.CrossesMidnight) {
		return HoursStatus{ShouldRespond: true}
	}

	// yesterday's window may run past midnight into today
	yesterday := models.DaysOrder[(todayIdx+6)%7]
	if y, ok := windows[yesterday]; ok && y.row.IsEnabled && y.row.CrossesMidnight && nowMin < y.close {
		return HoursStatus{ShouldRespond: true}
	}

	next := nextOpenWindow(windows, todayIdx, nowMin)

	switch {
	case !hasToday:
		return HoursStatus{Message: noServiceMessage(next, "⏰ Lo sentimos, actualmente no tenemos servicio. Por favor intenta más tarde."), NextOpen: next}
	case !todayWin.row.IsEnabled:
		return HoursStatus{Message: noServiceMessage(next, "⏰ Lo sentimos, actualmente estamos cerrados."), NextOpen: next}
	}

	if nowMin < todayWin.open || next == nil || next.Day == today {
		return HoursStatus{Message: outsideHoursMessage(todayWin.row), NextOpen: next}
	}
	return HoursStatus{
		Message: fmt.Sprintf("⏰ Lo sentimos, estamos cerrados en este momento. Nuestro próximo horario de atención es el *%s* de %s a %s.",
			dayNamesES[next.Day], next.OpenTime, next.CloseTime),
		NextOpen: next,
	}
}

func noServiceMessage(next *NextWindow, fallback string) string {
	if next == nil {
		return fallback
	}
	return fmt.Sprintf("⏰ Lo sentimos, hoy no tenemos servicio. Nuestro próximo día de atención es el *%s* de %s a %s.",
		dayNamesES[next.Day], next.OpenTime, next.CloseTime)
}

func outsideHoursMessage(row *models.BusinessHours) string {
	msg := fmt.Sprintf("⏰ Lo sentimos, estamos cerrados en este momento. Hoy *%s* nuestro horario de atención es de %s a %s",
		dayNamesES[row.DayOfWeek], row.OpenTime, row.CloseTime)
	if row.CrossesMidnight {
		msg += " del día siguiente"
	}
	return msg + "."
}

// nextOpenWindow scans forward from today, treating a crossing close as
// close+1440, and returns the first window that has not fully elapsed.
func nextOpenWindow(windows map[string]dayWindow, todayIdx, nowMin int) *NextWindow {
	for offset := 0; offset <= 7; offset++ {
		day := models.DaysOrder[(todayIdx+offset)%7]
		w, ok := windows[day]
		if !ok || !w.row.IsEnabled {
			continue
		}
		closeAt := w.close
		if w.row.CrossesMidnight {
			closeAt += minutesPerDay
		}
		start := offset*minutesPerDay + w.open - nowMin
		end := offset*minutesPerDay + closeAt - nowMin
		if start > 0 || end > 0 {
			if start < 0 {
				start = 0
			}
			return &NextWindow{
				Day:              day,
				OpenTime:         w.row.OpenTime,
				CloseTime:        w.row.CloseTime,
				CrossesMidnight:  w.row.CrossesMidnight,
				MinutesUntilOpen: start,
			}
		}
	}
	return nil
}

// inRange compares minutes since local midnight; close is exclusive.
func inRange(now, open, close int, crossesMidnight bool) bool {
	if crossesMidnight {
		return now >= open || now < close
	}
	return now >= open && now < close
}

func indexWindows(rows []*models.BusinessHours) map[string]dayWindow {
	out := make(map[string]dayWindow, len(rows))
	for _, r := range rows {
		if _, dup := out[r.DayOfWeek]; dup {
			continue
		}
		open, err1 := parseClock(r.OpenTime)
		closeMin, err2 := parseClock(r.CloseTime)
		if err1 != nil || err2 != nil {
			// unparseable rows count as a closed day
			out[r.DayOfWeek] = dayWindow{row: &models.BusinessHours{DayOfWeek: r.DayOfWeek}}
			continue
		}
		out[r.DayOfWeek] = dayWindow{row: r, open: open, close: closeMin}
	}
	return out
}

func dayIndex(day string) int {
	for i, d := range models.DaysOrder {
		if d == day {
			return i
		}
	}
	return 0
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if !clockPattern.MatchString(s) {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return h*60 + m, nil
}

// BusinessHoursInput is one day of a schedule update.
type BusinessHoursInput struct {
	DayOfWeek       string `json:"day_of_week" validate:"required,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
	IsEnabled       bool   `json:"is_enabled"`
	OpenTime        string `json:"open_time" validate:"required,clock"`
	CloseTime       string `json:"close_time" validate:"required,clock"`
	CrossesMidnight bool   `json:"crosses_midnight"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})
	return v
}

// BusinessHoursService is the store-backed side of the gate.
type BusinessHoursService struct {
	store      storage.Store
	defaultLoc *time.Location
	logger     *slog.Logger
	now        func() time.Time
}

func NewBusinessHoursService(store storage.Store, defaultLoc *time.Location, log *slog.Logger) *BusinessHoursService {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &BusinessHoursService{
		store:      store,
		defaultLoc: defaultLoc,
		logger:     log.With(slog.String("component", "business_hours")),
		now:        time.Now,
	}
}

// Status evaluates the gate for merchantID right now.
func (s *BusinessHoursService) Status(ctx context.Context, merchantID string) (HoursStatus, error) {
	merchant, err := s.store.GetMerchant(ctx, merchantID)
	if errors.Is(err, storage.ErrNotFound) {
		return HoursStatus{ShouldRespond: false, Message: merchantNotFoundMessage}, nil
	}
	if err != nil {
		return HoursStatus{}, fmt.Errorf("load merchant: %w", err)
	}

	rows, err := s.store.GetBusinessHours(ctx, merchantID)
	if err != nil {
		return HoursStatus{}, fmt.Errorf("load business hours: %w", err)
	}
	return CheckBusinessHours(s.now(), s.location(merchant), rows), nil
}

func (s *BusinessHoursService) location(m *models.Merchant) *time.Location {
	if m.Timezone == "" {
		return s.defaultLoc
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		s.logger.Warn("unknown merchant timezone, using default",
			slog.String("merchant_id", m.ID), slog.String("timezone", m.Timezone))
		return s.defaultLoc
	}
	return loc
}

// List returns the merchant's schedule in Monday-first order.
func (s *BusinessHoursService) List(ctx context.Context, merchantID string) ([]*models.BusinessHours, error) {
	rows, err := s.store.GetBusinessHours(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	ordered := make([]*models.BusinessHours, 0, len(rows))
	for _, day := range models.DaysOrder {
		for _, r := range rows {
			if r.DayOfWeek == day {
				ordered = append(ordered, r)
			}
		}
	}
	return ordered, nil
}

// Replace swaps the merchant's whole week for input.
func (s *BusinessHoursService) Replace(ctx context.Context, merchantID string, input []BusinessHoursInput) ([]*models.BusinessHours, error) {
	if _, err := s.store.GetMerchant(ctx, merchantID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}

	seen := make(map[string]bool, len(input))
	rows := make([]*models.BusinessHours, 0, len(input))
	for i, in := range input {
		in.DayOfWeek = strings.ToUpper(strings.TrimSpace(in.DayOfWeek))
		if err := validate.Struct(in); err != nil {
			return nil, fmt.Errorf("%w: day %d: %v", ErrInvalidInput, i, err)
		}
		if seen[in.DayOfWeek] {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidInput, in.DayOfWeek)
		}
		seen[in.DayOfWeek] = true
		open, _ := parseClock(in.OpenTime)
		closeMin, _ := parseClock(in.CloseTime)
		if !in.CrossesMidnight && closeMin <= open {
			return nil, fmt.Errorf("%w: %s closes before it opens; set crosses_midnight", ErrInvalidInput, in.DayOfWeek)
		}
		rows = append(rows, &models.BusinessHours{
			MerchantID:      merchantID,
			DayOfWeek:       in.DayOfWeek,
			IsEnabled:       in.IsEnabled,
			OpenTime:        in.OpenTime,
			CloseTime:       in.CloseTime,
			CrossesMidnight: in.CrossesMidnight,
		})
	}

	if err := s.store.ReplaceBusinessHours(ctx, merchantID, rows); err != nil {
		return nil, fmt.Errorf("replace business hours: %w", err)
	}
	s.logger.Info("business hours updated", slog.String("merchant_id", merchantID), slog.Int("days", len(rows)))
	return s.List(ctx, merchantID)
}
