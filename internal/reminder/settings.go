package reminder

import (
	"context"
	"errors"
	"fmt"

	"github.com/sekia-ai/calremind/internal/store"
)

const (
	DefaultLeadMinutes = 5
	MinLeadMinutes     = 1
	// MaxLeadMinutes keeps every notified key younger than LedgerRetention
	// while its event is still inside the reminder window.
	MaxLeadMinutes = 1440
)

// ErrInvalidLeadTime is returned when a lead time is outside the accepted range.
var ErrInvalidLeadTime = errors.New("lead time out of range")

// ValidateLeadMinutes checks m against the accepted range.
func ValidateLeadMinutes(m int) error {
	if m < MinLeadMinutes || m > MaxLeadMinutes {
		return fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidLeadTime, m, MinLeadMinutes, MaxLeadMinutes)
	}
	return nil
}

// Settings reads and writes the user's reminder lead time.
type Settings struct {
	store       store.Store
	defaultLead int
}

// NewSettings returns settings backed by s. A defaultLead outside the
// accepted range falls back to DefaultLeadMinutes.
func NewSettings(s store.Store, defaultLead int) *Settings {
	if ValidateLeadMinutes(defaultLead) != nil {
		defaultLead = DefaultLeadMinutes
	}
	return &Settings{store: s, defaultLead: defaultLead}
}

// LeadMinutes returns the stored lead time, or the default when unset.
func (s *Settings) LeadMinutes(ctx context.Context) (int, error) {
	var m int
	found, err := store.GetJSON(ctx, s.store, store.KeyLeadTime, &m)
	if err != nil {
		return 0, fmt.Errorf("read lead time: %w", err)
	}
	if !found {
		return s.defaultLead, nil
	}
	return m, nil
}

// SetLeadMinutes validates and persists m.
func (s *Settings) SetLeadMinutes(ctx context.Context, m int) error {
	if err := ValidateLeadMinutes(m); err != nil {
		return err
	}
	return store.SetJSON(ctx, s.store, store.KeyLeadTime, m)
}

// EnsureDefaults seeds the lead time if it has never been set. It reports
// whether a value was written.
func (s *Settings) EnsureDefaults(ctx context.Context) (bool, error) {
	_, err := s.store.Get(ctx, store.KeyLeadTime)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("read lead time: %w", err)
	}
	if err := store.SetJSON(ctx, s.store, store.KeyLeadTime, s.defaultLead); err != nil {
		return false, err
	}
	return true, nil
}
