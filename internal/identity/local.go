package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MinPasswordLength matches the identity daemon's rule.
const MinPasswordLength = 6

// Directory is an in-process account registry. Providers created from the
// same Directory share accounts but keep independent sessions, like two
// client contexts of one identity service.
type Directory struct {
	mu       sync.Mutex
	accounts map[string]localAccount
}

type localAccount struct {
	uid    string
	email  string
	digest [sha256.Size]byte
}

func NewDirectory() *Directory {
	return &Directory{accounts: make(map[string]localAccount)}
}

// NewProvider returns a fresh, signed-out context on d.
func (d *Directory) NewProvider() *LocalProvider {
	return &LocalProvider{dir: d}
}

func (d *Directory) register(email, password string) (*Identity, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" || !strings.Contains(key, "@") || len(password) < MinPasswordLength {
		return nil, ErrInvalidInput
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.accounts[key]; ok {
		return nil, ErrEmailInUse
	}
	acc := localAccount{uid: uuid.NewString(), email: key, digest: sha256.Sum256([]byte(password))}
	d.accounts[key] = acc
	return &Identity{UID: acc.uid, Email: acc.email}, nil
}

func (d *Directory) verify(email, password string) (*Identity, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	d.mu.Lock()
	acc, ok := d.accounts[key]
	d.mu.Unlock()

	digest := sha256.Sum256([]byte(password))
	if !ok || subtle.ConstantTimeCompare(acc.digest[:], digest[:]) != 1 {
		return nil, ErrInvalidCredentials
	}
	return &Identity{UID: acc.uid, Email: acc.email}, nil
}

// LocalProvider is a Provider backed by a Directory.
type LocalProvider struct {
	notifier
	dir *Directory
}

func (p *LocalProvider) SignIn(_ context.Context, email, password string) (*Identity, error) {
	id, err := p.dir.verify(email, password)
	if err != nil {
		return nil, err
	}
	p.publish(id)
	return id, nil
}

func (p *LocalProvider) SignOut(context.Context) error {
	p.publish(nil)
	return nil
}

func (p *LocalProvider) CreateAccount(_ context.Context, email, password string) (*Identity, error) {
	id, err := p.dir.register(email, password)
	if err != nil {
		return nil, err
	}
	p.publish(id)
	return id, nil
}
