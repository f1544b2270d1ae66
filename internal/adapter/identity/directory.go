package identity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
)

// User is one entry of the directory file.
type User struct {
	ID          string           `yaml:"id"`
	DisplayName string           `yaml:"displayName"`
	Email       string           `yaml:"email"`
	Warehouse   domain.Warehouse `yaml:"warehouse"`
	Admin       bool             `yaml:"admin"`
}

type FileConfig struct {
	Users []User `yaml:"users"`
}

// Directory resolves the caller from the user id carried in the request
// context against a static list of users.
type Directory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewDirectory(users []User) (*Directory, error) {
	d := &Directory{}
	if err := d.Replace(users); err != nil {
		return nil, err
	}
	return d, nil
}

// Load reads a YAML directory file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse directory file: %w", err)
	}
	return NewDirectory(cfg.Users)
}

// Replace swaps the user list after validating every entry.
func (d *Directory) Replace(users []User) error {
	next := make(map[string]User, len(users))
	for i, u := range users {
		if u.ID == "" {
			return fmt.Errorf("user %d: id is required", i)
		}
		if _, dup := next[u.ID]; dup {
			return fmt.Errorf("user %s: duplicate id", u.ID)
		}
		if !u.Admin && !u.Warehouse.Valid() {
			return fmt.Errorf("user %s: unknown warehouse %q", u.ID, u.Warehouse)
		}
		next[u.ID] = u
	}
	d.mu.Lock()
	d.users = next
	d.mu.Unlock()
	return nil
}

func (d *Directory) CurrentPrincipal(ctx context.Context) (domain.Identity, error) {
	id := domain.UserIDFromContext(ctx)
	if id == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	d.mu.RLock()
	u, ok := d.users[id]
	d.mu.RUnlock()
	if !ok {
		return domain.Identity{}, fmt.Errorf("%w: unknown user %s", domain.ErrUnauthenticated, id)
	}
	return domain.Identity{ID: u.ID, DisplayName: u.DisplayName, Email: u.Email}, nil
}

func (d *Directory) UserProfile(ctx context.Context, userID string) (domain.Profile, error) {
	d.mu.RLock()
	u, ok := d.users[userID]
	d.mu.RUnlock()
	if !ok {
		return domain.Profile{}, fmt.Errorf("%w: no profile for %s", domain.ErrUnauthenticated, userID)
	}
	return domain.Profile{Warehouse: u.Warehouse, Admin: u.Admin}, nil
}
