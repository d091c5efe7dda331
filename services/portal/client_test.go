package portal_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/user"
	"github.com/pavulla/kiosk/services/portal"
	"github.com/pavulla/kiosk/tests"
)

func newClient(p *testutil.FakePortal, token string) *portal.Client {
	conf := core.PortalConfig{APIBaseURL: p.APIBaseURL(), ScanBaseURL: p.ScanBaseURL(), Timeout: 5 * time.Second}
	return portal.NewClient(conf, token, testutil.Logger())
}

func TestClient_Login(t *testing.T) {
	p := testutil.NewFakePortal()
	defer p.Close()
	p.Phone, p.Password, p.Token = "840000000", "s3cret", "tok"

	tests := []struct {
		name     string
		phone    string
		password string
		wantErr  string
	}{
		{name: "valid", phone: " 840000000 ", password: "s3cret"},
		{name: "wrong password", phone: "840000000", password: "nope", wantErr: "invalid credentials"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess, err := newClient(p, "").Login(context.Background(), tc.phone, tc.password)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantErr, err.Error())
				apiErr, ok := err.(*portal.Error)
				require.True(t, ok)
				assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "tok", sess.Token)
			assert.Equal(t, "g-1", sess.Guest.ID)
			assert.Equal(t, user.RoleGuest, sess.Guest.Role)
		})
	}
}

func TestClient_Activities(t *testing.T) {
	p := testutil.NewFakePortal()
	defer p.Close()
	p.Token = "tok"
	p.ActivitiesBody = `{"activities":[{"id":"A1","name":"Welcome","has_signed":true,"signature_count":3}]}`

	acts, err := newClient(p, "tok").Activities(context.Background())
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "A1", acts[0].ID)
	assert.True(t, acts[0].HasSigned)
	assert.Equal(t, 3, acts[0].SignatureCount)

	_, err = newClient(p, "stale").Activities(context.Background())
	require.Error(t, err)
	assert.Equal(t, "invalid token", err.Error())
}

func TestClient_Memories(t *testing.T) {
	p := testutil.NewFakePortal()
	defer p.Close()
	p.MemoriesBody = `{"memories":[{"id":"M1","activity_id":"A1","content_type":"text","content_text":"hi","file_url":null}]}`

	mems, err := newClient(p, "tok").Memories(context.Background(), "A1")
	require.NoError(t, err)
	require.Len(t, mems, 1)
	require.NotNil(t, mems[0].ContentText)
	assert.Equal(t, "hi", *mems[0].ContentText)
	assert.Nil(t, mems[0].FileURL)

	p.MemoriesBody = `{}`
	mems, err = newClient(p, "tok").Memories(context.Background(), "A1")
	require.NoError(t, err)
	assert.NotNil(t, mems)
	assert.Len(t, mems, 0)
}

func TestClient_Users(t *testing.T) {
	p := testutil.NewFakePortal()
	defer p.Close()
	p.UsersBody = `{"users":[{"id":"g-1","full_name":"Ana","is_admin":false},{"id":"g-9","full_name":"Rui","is_admin":true}]}`

	users, err := newClient(p, "tok").Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, user.RoleGuest, users[0].Role)
	assert.Equal(t, user.RoleAdmin, users[1].Role)
}

func TestNewHTTPClient_bearerScope(t *testing.T) {
	p := testutil.NewFakePortal()
	defer p.Close()
	client := portal.NewHTTPClient(p.APIBaseURL(), "tok", 5*time.Second)

	for _, u := range []string{p.ScanBaseURL() + "/v1/qrcodes/room-7/scan", p.APIBaseURL() + "/activities/"} {
		resp, err := client.Get(u)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.Equal(t, []string{"", "Bearer tok"}, p.Authorizations())
}
