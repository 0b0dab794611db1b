package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the explicit lifecycle tag of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInProcess Status = "in process"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
)

// Statuses lists the lifecycle in order.
var Statuses = []Status{StatusPending, StatusInProcess, StatusSent, StatusDelivered}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProcess, StatusSent, StatusDelivered:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus accepts the query-string spellings used by clients.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, nil
	case "in process", "in-process", "in_process", "confirmed":
		return StatusInProcess, nil
	case "sent":
		return StatusSent, nil
	case "delivered":
		return StatusDelivered, nil
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", raw)}
}

// StatusFromTimestamps derives the status from the lifecycle timestamps and
// rejects combinations the state machine can never produce.
func StatusFromTimestamps(startedAt, sentAt, deliveredAt *time.Time) (Status, error) {
	switch {
	case startedAt == nil && sentAt == nil && deliveredAt == nil:
		return StatusPending, nil
	case startedAt != nil && sentAt == nil && deliveredAt == nil:
		return StatusInProcess, nil
	case startedAt != nil && sentAt != nil && deliveredAt == nil:
		if sentAt.Before(*startedAt) {
			return "", fmt.Errorf("sentAt precedes startedAt")
		}
		return StatusSent, nil
	case startedAt != nil && sentAt != nil && deliveredAt != nil:
		if sentAt.Before(*startedAt) || deliveredAt.Before(*sentAt) {
			return "", fmt.Errorf("lifecycle timestamps out of order")
		}
		return StatusDelivered, nil
	}
	return "", fmt.Errorf("lifecycle timestamps set out of sequence")
}

// Action is a lifecycle transition requested by the restaurant owner.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionSend    Action = "send"
	ActionDeliver Action = "deliver"
)

type transition struct {
	from Status
	to   Status
}

var transitions = map[Action]transition{
	ActionConfirm: {from: StatusPending, to: StatusInProcess},
	ActionSend:    {from: StatusInProcess, to: StatusSent},
	ActionDeliver: {from: StatusSent, to: StatusDelivered},
}

// Transition returns the source and target status of an action.
func Transition(a Action) (from, to Status, ok bool) {
	t, ok := transitions[a]
	return t.from, t.to, ok
}
