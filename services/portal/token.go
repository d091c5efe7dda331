package portal

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core/user"
)

// TokenTTL is how long a saved login stays usable.
const TokenTTL = 7 * 24 * time.Hour

var (
	ErrNoToken      = errors.New("not logged in")
	ErrTokenExpired = errors.New("login expired, please log in again")

	nowFunc = time.Now // mockable
)

type savedToken struct {
	Token   string     `json:"token"`
	Guest   user.Guest `json:"user"`
	SavedAt time.Time  `json:"saved_at"`
}

// TokenStore keeps the operator's login on disk between CLI runs.
type TokenStore struct {
	path string
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// DefaultTokenFile is ~/.config/pavulla-kiosk/token.json, or token.json in workDir without a home.
func DefaultTokenFile(workDir string) string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pavulla-kiosk", "token.json")
	}
	return filepath.Join(workDir, "token.json")
}

func (s *TokenStore) Save(sess Session) error {
	data, err := json.Marshal(savedToken{Token: sess.Token, Guest: sess.Guest, SavedAt: nowFunc().UTC()})
	if err != nil {
		return errors.Wrap(err, "encoding token")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "creating token directory")
	}
	if err := ioutil.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "writing token")
	}
	return nil
}

// Load returns the saved login. An expired login is removed.
func (s *TokenStore) Load() (Session, error) {
	data, err := ioutil.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Session{}, ErrNoToken
	}
	if err != nil {
		return Session{}, errors.Wrap(err, "reading token")
	}

	var saved savedToken
	if err := json.Unmarshal(data, &saved); err != nil || saved.Token == "" {
		return Session{}, ErrNoToken
	}
	if nowFunc().Sub(saved.SavedAt) > TokenTTL {
		_ = s.Clear()
		return Session{}, ErrTokenExpired
	}
	return Session{Token: saved.Token, Guest: saved.Guest}, nil
}

func (s *TokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing token")
	}
	return nil
}
