// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package grant

import (
	"time"

	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
)

// Day truncates t to midnight UTC of its civil date in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayPtr applies Day to an optional date.
func DayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := Day(*t)
	return &d
}

// Window is a validity period in civil dates. Both ends are inclusive and a
// nil ValidUntil means open-ended.
type Window struct {
	ValidFrom  time.Time
	ValidUntil *time.Time
}

// NewWindow returns a day-truncated window. It rejects windows that end
// before they start.
func NewWindow(validFrom time.Time, validUntil *time.Time) (Window, error) {
	w := Window{ValidFrom: Day(validFrom), ValidUntil: DayPtr(validUntil)}
	if w.ValidUntil != nil && w.ValidUntil.Before(w.ValidFrom) {
		return Window{}, oops.Code(authz.CodeAssignmentInvalid).
			With("valid_from", w.ValidFrom.Format(time.DateOnly)).
			With("valid_until", w.ValidUntil.Format(time.DateOnly)).
			Errorf("validity window ends before it starts")
	}
	return w, nil
}

// ActiveAt reports whether the window covers the civil date of asOf.
func (w Window) ActiveAt(asOf time.Time) bool {
	day := Day(asOf)
	if Day(w.ValidFrom).After(day) {
		return false
	}
	return w.ValidUntil == nil || !Day(*w.ValidUntil).Before(day)
}

// EndedBefore returns a copy of w that stops on the day before asOf. It
// reports false when w starts on or after asOf, since no such window exists;
// ValidFrom is never moved.
func (w Window) EndedBefore(asOf time.Time) (Window, bool) {
	end := Day(asOf).AddDate(0, 0, -1)
	from := Day(w.ValidFrom)
	if end.Before(from) {
		return Window{}, false
	}
	if w.ValidUntil != nil && Day(*w.ValidUntil).Before(end) {
		end = Day(*w.ValidUntil)
	}
	return Window{ValidFrom: from, ValidUntil: &end}, true
}
