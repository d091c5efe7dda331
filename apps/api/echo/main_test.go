package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	. "github.com/pavulla/kiosk/apps/api/echo"
	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
	"github.com/pavulla/kiosk/core/scan"
	"github.com/pavulla/kiosk/core/user"
	"github.com/pavulla/kiosk/services/portal"
	"github.com/pavulla/kiosk/storage/database/inmem"
	"github.com/pavulla/kiosk/tests"
)

const secretKey = "test-secret"

var (
	ana       = user.Guest{ID: "g-1", FullName: "Ana", Role: user.RoleGuest}
	bob       = user.Guest{ID: "g-2", FullName: "Bob", Role: user.RoleGuest}
	reception = user.Guest{ID: "g-3", FullName: "Rita", Role: user.RoleReception}
	admin     = user.Guest{ID: "g-9", FullName: "Rui", IsAdmin: true}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type kiosk struct {
	app    Server
	svc    *checkin.Service
	repo   checkin.Repository
	cam    *testutil.FakeCamera
	portal *testutil.FakePortal
}

func setup(t *testing.T, cam *testutil.FakeCamera, dec scan.Decoder) *kiosk {
	fp := testutil.NewFakePortal()
	t.Cleanup(fp.Close)

	conf := &core.Config{
		Env:       "TEST",
		AppName:   "Pavulla Kiosk",
		TestMode:  true,
		SecretKey: secretKey,
		Server:    core.ServerConfig{DisableReqLogs: true},
	}
	logger := testutil.Logger()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	checkin.InitValidators(validate, translator)

	repo := inmemdb.NewCheckinRepository(inmemdb.Open())
	svc := checkin.NewService(checkin.ServiceOptions{
		Provider: cam,
		Decoder:  dec,
		Repo:     repo,
		Endpoints: checkin.Endpoints{
			ScanBaseURL: fp.ScanBaseURL(),
			APIBaseURL:  fp.APIBaseURL(),
			ClientAppID: "kiosk-test",
		},
		NewDoer: func(token string) checkin.Doer {
			return portal.NewHTTPClient(fp.APIBaseURL(), token, 5*time.Second)
		},
		SampleInterval: 2 * time.Millisecond,
		Logger:         logger,
	})
	t.Cleanup(svc.Close)

	app := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		CheckinSvc: svc,
		Validate:   validate,
		Translator: translator,
	})
	return &kiosk{app: app, svc: svc, repo: repo, cam: cam, portal: fp}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, g user.Guest) string {
	t.Helper()
	token, err := GenerateToken(GuestClaims(g, "portal", time.Hour), secretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode(%s) failed: %v", rec.Body.String(), err)
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := testutil.JSONBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("JSONBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func Test_home(t *testing.T) {
	k := setup(t, &testutil.FakeCamera{}, testutil.TextDecoder(""))

	req, rec := newRequest(http.MethodGet, "/")
	k.app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("code = %v; want %v", rec.Code, http.StatusOK)
	}
	if got := rec.Body.String(); got != "Welcome to Pavulla Kiosk!" {
		t.Errorf("body = %q", got)
	}
}
