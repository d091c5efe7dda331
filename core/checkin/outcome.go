package checkin

import "encoding/json"

type OutcomeKind string

const (
	OutcomeSuccess  OutcomeKind = "success"
	OutcomeError    OutcomeKind = "error"
	OutcomeNoCamera OutcomeKind = "no-camera"
)

var AllOutcomes = []OutcomeKind{OutcomeSuccess, OutcomeError, OutcomeNoCamera}

// Outcome is the terminal result of a scan, delivered once to the caller.
type Outcome struct {
	Kind   OutcomeKind     `json:"outcome"`
	Result json.RawMessage `json:"result,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

func successOutcome(result json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: result}
}

func errorOutcome(reason string) Outcome {
	return Outcome{Kind: OutcomeError, Reason: reason}
}

func noCameraOutcome(reason string) Outcome {
	return Outcome{Kind: OutcomeNoCamera, Reason: reason}
}
