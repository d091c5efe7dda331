package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// FakePortal serves the portal endpoints the kiosk talks to.
// The scan service lives at URL, the API under URL+"/api".
// Zero-valued statuses and bodies fall back to a successful answer.
type FakePortal struct {
	*httptest.Server

	ResolveStatus int
	ResolveBody   string
	ResolveGate   chan struct{} // when set, resolve waits for it to be closed
	ConfirmStatus int
	ConfirmBody   string

	Token          string // bearer the API endpoints require; empty accepts anything
	Phone          string // credentials accepted by /auth/login
	Password       string
	LoginBody      string
	ActivitiesBody string
	MemoriesBody   string
	UsersBody      string

	mu          sync.Mutex
	resolves    []string // ids
	confirms    []string // activity ids
	clientAppID string
	auths       []string
}

func NewFakePortal() *FakePortal {
	p := &FakePortal{}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	return p
}

func (p *FakePortal) ScanBaseURL() string { return p.URL }
func (p *FakePortal) APIBaseURL() string  { return p.URL + "/api" }

func (p *FakePortal) Resolves() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.resolves...)
}

func (p *FakePortal) Confirms() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.confirms...)
}

func (p *FakePortal) ClientAppID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientAppID
}

// Authorizations lists the Authorization headers received, in order, across all endpoints.
func (p *FakePortal) Authorizations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.auths...)
}

func (p *FakePortal) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.auths = append(p.auths, r.Header.Get("Authorization"))
	p.mu.Unlock()

	segs := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(segs) == 4 && segs[0] == "v1" && segs[1] == "qrcodes" && segs[3] == "scan" && r.Method == http.MethodGet:
		p.resolve(w, r, segs[2])
	case len(segs) == 0 || segs[0] != "api":
		writeJSON(w, http.StatusNotFound, `{"error":"not found"}`)
	case len(segs) == 3 && segs[1] == "auth" && segs[2] == "login" && r.Method == http.MethodPost:
		p.login(w, r)
	case !p.authorized(r):
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid token"}`)
	case len(segs) == 4 && segs[1] == "activities" && segs[3] == "sign" && r.Method == http.MethodPost:
		p.confirm(w, segs[2])
	case len(segs) == 2 && segs[1] == "activities" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, orDefault(p.ActivitiesBody, `{"activities":[]}`))
	case len(segs) == 4 && segs[1] == "activities" && segs[3] == "memories" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, orDefault(p.MemoriesBody, `{"memories":[]}`))
	case len(segs) == 2 && segs[1] == "users" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, orDefault(p.UsersBody, `{"users":[]}`))
	default:
		writeJSON(w, http.StatusNotFound, `{"error":"not found"}`)
	}
}

func (p *FakePortal) resolve(w http.ResponseWriter, r *http.Request, id string) {
	p.mu.Lock()
	p.resolves = append(p.resolves, id)
	p.clientAppID = r.Header.Get("client_app_id")
	p.mu.Unlock()

	if p.ResolveGate != nil {
		select {
		case <-p.ResolveGate:
		case <-r.Context().Done():
			return
		}
	}
	status := p.ResolveStatus
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, orDefault(p.ResolveBody, `{"data":{"activity_id":"A1"}}`))
}

func (p *FakePortal) confirm(w http.ResponseWriter, activityID string) {
	p.mu.Lock()
	p.confirms = append(p.confirms, activityID)
	p.mu.Unlock()

	status := p.ConfirmStatus
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, orDefault(p.ConfirmBody, `{"ok":true}`))
}

func (p *FakePortal) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid body"}`)
		return
	}
	if creds.Phone != p.Phone || creds.Password != p.Password {
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid credentials"}`)
		return
	}
	writeJSON(w, http.StatusOK, orDefault(p.LoginBody,
		`{"token":"`+p.Token+`","user":{"id":"g-1","full_name":"Ana","phone":"`+p.Phone+`","group_name":"A","is_admin":false}}`))
}

func (p *FakePortal) authorized(r *http.Request) bool {
	return p.Token == "" || r.Header.Get("Authorization") == "Bearer "+p.Token
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
