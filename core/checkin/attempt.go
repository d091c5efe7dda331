package checkin

import (
	"encoding/json"
	"fmt"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusResolving  Status = "resolving"
	StatusConfirming Status = "confirming"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// allowed status transitions
var transitions = map[Status][]Status{
	StatusPending:    {StatusResolving},
	StatusResolving:  {StatusConfirming, StatusFailed},
	StatusConfirming: {StatusSucceeded, StatusFailed},
}

func (st Status) IsTerminal() bool {
	return st == StatusSucceeded || st == StatusFailed
}

// Attempt is one resolve + confirm exchange for an identifier read from a QR code.
type Attempt struct {
	ID                 string          `json:"id"`
	Status             Status          `json:"status"`
	ResolvedActivityID string          `json:"resolved_activity_id,omitempty"`
	FailureReason      string          `json:"failure_reason,omitempty"`
	Result             json.RawMessage `json:"result,omitempty"`
}

func NewAttempt(id string) *Attempt {
	return &Attempt{ID: id, Status: StatusPending}
}

func (a *Attempt) moveTo(next Status) {
	for _, allowed := range transitions[a.Status] {
		if allowed == next {
			a.Status = next
			return
		}
	}
	panic(fmt.Sprintf("checkin: illegal attempt transition %s -> %s", a.Status, next))
}

func (a *Attempt) fail(reason string) {
	a.FailureReason = reason
	a.moveTo(StatusFailed)
}
