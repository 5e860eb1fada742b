package domain

import (
	"fmt"
	"strings"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// ParseAppointmentStatus normalizes raw input into a known status.
func ParseAppointmentStatus(raw string) (AppointmentStatus, error) {
	s := AppointmentStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", raw)
}

// Terminal reports whether s ends the appointment lifecycle.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// TransitionPolicy decides whether an appointment may move between statuses.
type TransitionPolicy interface {
	Allow(from, to AppointmentStatus) error
}

// PermissivePolicy accepts every transition, including re-opening completed
// or cancelled appointments. Staff tooling relies on this to correct mistakes.
type PermissivePolicy struct{}

func (PermissivePolicy) Allow(_, _ AppointmentStatus) error { return nil }

// TerminalGuardPolicy refuses to move an appointment out of a terminal status.
type TerminalGuardPolicy struct{}

func (TerminalGuardPolicy) Allow(from, to AppointmentStatus) error {
	if from.Terminal() && from != to {
		return fmt.Errorf("appointment is %s and cannot move to %s", from, to)
	}
	return nil
}

// PolicyByName maps a config value to a transition policy.
func PolicyByName(name string) (TransitionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "permissive":
		return PermissivePolicy{}, nil
	case "terminal":
		return TerminalGuardPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown status policy %q", name)
}
