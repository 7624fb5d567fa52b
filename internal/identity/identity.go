package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tunnel-keeper/internal/env"
)

var ErrNotLoggedIn = errors.New("not logged in")

/**
 * Login identity of the user owning the tunnels
 * @property {string} domain - Account domain, e.g. REDMOND / FAREAST
 * @property {string} alias - Account alias (user name without @host)
 */
type Identity struct {
	Domain string `json:"domain"`
	Alias  string `json:"alias"`
}

// Login returns the remote login name "{domain}.{alias}"
func (id Identity) Login() string {
	return fmt.Sprintf("%s.%s", id.Domain, id.Alias)
}

func (id Identity) Valid() bool {
	return id.Domain != "" && id.Alias != ""
}

// Provider supplies the login identity; Current reports false while the user is not authenticated
type Provider interface {
	Current() (string, bool)
	Changes() <-chan struct{}
}

// FilePath is where the identity is kept on disk
func FilePath() string {
	return filepath.Join(env.KeeperDir, "identity.json")
}

/**
 * Load identity from identity.json
 * @param {string} path - File to read
 * @returns {(Identity, error)} Identity or ErrNotLoggedIn when the file is absent or incomplete
 */
func Load(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Identity{}, ErrNotLoggedIn
		}
		return Identity{}, fmt.Errorf("failed to read identity file: %w", err)
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("failed to decode identity file: %w", err)
	}
	id.Domain = strings.TrimSpace(id.Domain)
	id.Alias = strings.TrimSpace(strings.Split(id.Alias, "@")[0])
	if !id.Valid() {
		return Identity{}, ErrNotLoggedIn
	}
	return id, nil
}

/**
 * Save identity to identity.json
 * @param {string} path - Destination file
 * @param {Identity} id - Identity to persist
 * @returns {error} Returns error if identity is incomplete or write fails
 */
func Save(path string, id Identity) error {
	if !id.Valid() {
		return fmt.Errorf("domain and alias are required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Remove logs the user out; removing an absent file is not an error
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Static is a fixed provider, switchable at runtime
type Static struct {
	mu      sync.RWMutex
	login   string
	changes chan struct{}
}

func NewStatic(login string) *Static {
	return &Static{login: login, changes: make(chan struct{}, 1)}
}

func (s *Static) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.login, s.login != ""
}

func (s *Static) Changes() <-chan struct{} {
	return s.changes
}

// Set replaces the login; an empty login means logged out
func (s *Static) Set(login string) {
	s.mu.Lock()
	s.login = login
	s.mu.Unlock()
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
