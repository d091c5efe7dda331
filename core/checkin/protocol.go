package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core"
)

const (
	maxBodySize = 1 << 20

	clientAppIDHeader = "client_app_id"

	stepResolve = "resolve"
	stepConfirm = "confirm"

	signFailedText = "failed to sign activity"
)

type (
	// Doer sends HTTP requests; an *http.Client fits.
	// The doer given to a Protocol is expected to add the guest's bearer token to API requests.
	Doer interface {
		Do(req *http.Request) (*http.Response, error)
	}

	Endpoints struct {
		ScanBaseURL string // serves /v1/qrcodes/{id}/scan
		APIBaseURL  string // serves /activities/{id}/sign
		ClientAppID string
	}
)

// StepError is a failed resolve or confirm request.
type StepError struct {
	Step   string
	Status int // 0 when no response was received
	Reason string
}

func (e *StepError) Error() string {
	return e.Step + " failed: " + e.Reason
}

// Message is what the guest gets to see: the backend's own words for a refused confirm,
// the full error otherwise.
func (e *StepError) Message() string {
	if e.Step == stepConfirm {
		return e.Reason
	}
	return e.Error()
}

// Protocol turns a scanned identifier into a signed activity: resolve, then confirm.
// Neither step is retried.
type Protocol struct {
	doer      Doer
	endpoints Endpoints
	logger    core.Logger
}

func NewProtocol(doer Doer, endpoints Endpoints, logger core.Logger) *Protocol {
	return &Protocol{doer: doer, endpoints: endpoints, logger: logger}
}

// Run resolves `id` and confirms attendance to the resolved activity.
// progress, when not nil, receives a copy of the attempt on every status change.
func (p *Protocol) Run(ctx context.Context, id string, progress func(Attempt)) *Attempt {
	a := NewAttempt(id)
	notify := func() {
		if progress != nil {
			progress(*a)
		}
	}

	a.moveTo(StatusResolving)
	notify()
	activityID, err := p.Resolve(ctx, id)
	if err != nil {
		p.logger.Warn("checkin: resolve failed", err, map[string]interface{}{"id": id})
		a.fail(failureMessage(err))
		notify()
		return a
	}
	a.ResolvedActivityID = activityID

	a.moveTo(StatusConfirming)
	notify()
	result, err := p.Confirm(ctx, activityID)
	if err != nil {
		p.logger.Warn("checkin: confirm failed", err, map[string]interface{}{"id": id, "activity_id": activityID})
		a.fail(failureMessage(err))
		notify()
		return a
	}
	a.Result = result
	a.moveTo(StatusSucceeded)
	p.logger.Info("checkin: activity signed", map[string]interface{}{"id": id, "activity_id": activityID})
	notify()
	return a
}

type resolveResponse struct {
	Data *struct {
		ActivityID json.RawMessage `json:"activity_id"`
	} `json:"data"`
}

// Resolve exchanges a scanned identifier for the activity it points at.
// Only the first JSON object of the body is read: the scan service appends extra bytes after it.
func (p *Protocol) Resolve(ctx context.Context, id string) (string, error) {
	u := p.endpoints.ScanBaseURL + "/v1/qrcodes/" + url.PathEscape(id) + "/scan"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", errors.Wrap(err, "building resolve request")
	}
	req.Header[clientAppIDHeader] = []string{p.endpoints.ClientAppID} // sent verbatim, not canonicalized
	req.Header.Set("Accept", "application/json")

	resp, err := p.doer.Do(req)
	if err != nil {
		return "", &StepError{Step: stepResolve, Reason: "request error: " + err.Error()}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StepError{Step: stepResolve, Status: resp.StatusCode, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var data resolveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&data); err != nil {
		return "", &StepError{Step: stepResolve, Status: resp.StatusCode, Reason: "malformed response: " + err.Error()}
	}
	if data.Data == nil {
		return "", &StepError{Step: stepResolve, Status: resp.StatusCode, Reason: "response has no data"}
	}
	activityID, ok := parseActivityID(data.Data.ActivityID)
	if !ok {
		return "", &StepError{Step: stepResolve, Status: resp.StatusCode, Reason: "response has no data.activity_id"}
	}
	return activityID, nil
}

// Confirm signs the guest into an activity and returns the backend's answer untouched.
func (p *Protocol) Confirm(ctx context.Context, activityID string) (json.RawMessage, error) {
	u := p.endpoints.APIBaseURL + "/activities/" + url.PathEscape(activityID) + "/sign"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building confirm request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.doer.Do(req)
	if err != nil {
		p.logger.Debug("checkin: confirm request error", err)
		return nil, &StepError{Step: stepConfirm, Reason: signFailedText}
	}
	defer drainAndClose(resp.Body)

	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &StepError{Step: stepConfirm, Status: resp.StatusCode, Reason: signFailedText}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := signFailedText
		var data struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &data) == nil && data.Error != "" {
			reason = data.Error
		}
		return nil, &StepError{Step: stepConfirm, Status: resp.StatusCode, Reason: reason}
	}
	return rawResult(body), nil
}

func parseActivityID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || core.CleanString(s) == "" {
			return "", false
		}
		return core.CleanString(s), true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
			return "", false
		}
		return string(raw), true
	}
	return "", false
}

// rawResult keeps a JSON body as is and wraps anything else in a JSON string.
func rawResult(body []byte) json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

func failureMessage(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Message()
	}
	return err.Error()
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(ioutil.Discard, io.LimitReader(body, maxBodySize))
	_ = body.Close()
}
