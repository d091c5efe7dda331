package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/user"
)

const maxBodySize = 1 << 20

type (
	Activity struct {
		ID             string `json:"id"`
		Name           string `json:"name"`
		Description    string `json:"description"`
		ActivityDate   string `json:"activity_date"`
		StartTime      string `json:"start_time"`
		EndTime        string `json:"end_time"`
		HasSigned      bool   `json:"has_signed"`
		SignatureCount int    `json:"signature_count"`
		CreatedAt      string `json:"created_at"`
	}

	Memory struct {
		ID          string  `json:"id"`
		ActivityID  string  `json:"activity_id"`
		UserID      string  `json:"user_id"`
		UserName    string  `json:"user_name"`
		ContentText *string `json:"content_text"`
		ContentType string  `json:"content_type"`
		FileURL     *string `json:"file_url"`
		CreatedAt   string  `json:"created_at"`
	}

	// Session is a successful login.
	Session struct {
		Token string     `json:"token"`
		Guest user.Guest `json:"user"`
	}

	// Error is a non-2xx answer from the portal API.
	Error struct {
		Status  int
		Message string
	}
)

func (e *Error) Error() string {
	return e.Message
}

// Client talks to the portal API as one guest.
type Client struct {
	baseURL string
	http    *http.Client
	logger  core.Logger
}

// NewClient returns a client for the API at conf.APIBaseURL, authenticated with `token` (may be empty).
func NewClient(conf core.PortalConfig, token string, logger core.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(conf.APIBaseURL, "/"),
		http:    NewHTTPClient(conf.APIBaseURL, token, conf.Timeout),
		logger:  logger,
	}
}

// HTTP is the authenticated client, for callers building their own requests.
func (c *Client) HTTP() *http.Client {
	return c.http
}

func (c *Client) Login(ctx context.Context, phone, password string) (Session, error) {
	body := map[string]string{"phone": core.CleanString(phone), "password": password}
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &sess, "login failed"); err != nil {
		return Session{}, err
	}
	if sess.Token == "" {
		return Session{}, errors.New("login failed: no token in response")
	}
	sess.Guest.Role = sess.Guest.EffectiveRole()
	c.logger.Info("portal: logged in", sess.Guest)
	return sess, nil
}

// Activities lists the agenda, with the guest's signature status for each activity.
func (c *Client) Activities(ctx context.Context) ([]Activity, error) {
	var data struct {
		Activities []Activity `json:"activities"`
	}
	if err := c.do(ctx, http.MethodGet, "/activities/", nil, &data, "failed to fetch activities"); err != nil {
		return nil, err
	}
	if data.Activities == nil {
		return []Activity{}, nil
	}
	return data.Activities, nil
}

func (c *Client) Memories(ctx context.Context, activityID string) ([]Memory, error) {
	var data struct {
		Memories []Memory `json:"memories"`
	}
	path := "/activities/" + url.PathEscape(activityID) + "/memories"
	if err := c.do(ctx, http.MethodGet, path, nil, &data, "failed to fetch memories"); err != nil {
		return nil, err
	}
	if data.Memories == nil {
		return []Memory{}, nil
	}
	return data.Memories, nil
}

// Users lists the portal accounts; admin only.
func (c *Client) Users(ctx context.Context) ([]user.Guest, error) {
	var data struct {
		Users []user.Guest `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", nil, &data, "failed to fetch users"); err != nil {
		return nil, err
	}
	users := make([]user.Guest, 0, len(data.Users))
	for _, u := range data.Users {
		u.Role = u.EffectiveRole()
		users = append(users, u)
	}
	return users, nil
}

// do sends a JSON request and decodes a JSON answer into `out`.
// Failures carry the portal's `error` message, or `fallback` when there is none.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, fallback string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, fallback)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, fallback)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fallback
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		c.logger.Debug("portal: request failed", map[string]interface{}{"method": method, "path": path, "status": resp.StatusCode})
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}
