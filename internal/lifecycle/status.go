// Package lifecycle is the shared vocabulary for reservation and device states
// and the transitions allowed between them.
package lifecycle

import (
	"errors"
	"fmt"
)

// Status is a reservation's position in its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// DeviceStatus is the physical unit's availability.
type DeviceStatus string

const (
	DeviceAvailable   DeviceStatus = "available"
	DeviceInUse       DeviceStatus = "in_use"
	DeviceMaintenance DeviceStatus = "maintenance"
)

// Trigger identifies who or what drives a transition.
type Trigger string

const (
	TriggerOperator Trigger = "operator"
	TriggerUser     Trigger = "user"
	TriggerTime     Trigger = "time"
)

// ErrInvalidTransition is returned when a status change is not in the table.
var ErrInvalidTransition = errors.New("invalid status transition")

// Transition is one edge of the state machine.
type Transition struct {
	From     Status
	To       Status
	Triggers []Trigger
}

var transitions = []Transition{
	{From: StatusPending, To: StatusApproved, Triggers: []Trigger{TriggerOperator}},
	{From: StatusPending, To: StatusRejected, Triggers: []Trigger{TriggerOperator}},
	{From: StatusPending, To: StatusCancelled, Triggers: []Trigger{TriggerOperator, TriggerUser}},
	{From: StatusApproved, To: StatusCancelled, Triggers: []Trigger{TriggerOperator, TriggerUser}},
	{From: StatusApproved, To: StatusCheckedIn, Triggers: []Trigger{TriggerOperator}},
	{From: StatusApproved, To: StatusNoShow, Triggers: []Trigger{TriggerTime}},
	{From: StatusCheckedIn, To: StatusCompleted, Triggers: []Trigger{TriggerTime}},
}

// BlockingStatuses occupy a device for conflict and capacity purposes.
var BlockingStatuses = []Status{StatusPending, StatusApproved, StatusCheckedIn}

// ParseDeviceStatus validates a raw device status string.
func ParseDeviceStatus(s string) (DeviceStatus, error) {
	switch st := DeviceStatus(s); st {
	case DeviceAvailable, DeviceInUse, DeviceMaintenance:
		return st, nil
	}
	return "", fmt.Errorf("unknown device status %q", s)
}

// IsBlocking reports whether s occupies its interval.
func (s Status) IsBlocking() bool {
	for _, b := range BlockingStatuses {
		if s == b {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanTransition reports whether from→to is allowed for the given trigger.
func CanTransition(from, to Status, by Trigger) bool {
	for _, t := range transitions {
		if t.From != from || t.To != to {
			continue
		}
		for _, allowed := range t.Triggers {
			if allowed == by {
				return true
			}
		}
	}
	return false
}

// Check returns ErrInvalidTransition wrapped with context when from→to is not allowed.
func Check(from, to Status, by Trigger) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: reservation is already %s", ErrInvalidTransition, from)
	}
	if !CanTransition(from, to, by) {
		return fmt.Errorf("%w: %s -> %s by %s", ErrInvalidTransition, from, to, by)
	}
	return nil
}

// Sources lists the statuses from which to is reachable by the trigger. Stores use
// it as the guard of a conditional update.
func Sources(to Status, by Trigger) []Status {
	var out []Status
	for _, t := range transitions {
		if t.To != to {
			continue
		}
		for _, allowed := range t.Triggers {
			if allowed == by {
				out = append(out, t.From)
				break
			}
		}
	}
	return out
}

// Strings converts statuses for use in query arguments.
func Strings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
