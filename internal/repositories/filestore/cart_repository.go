package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const filePerm = 0o600

// CartRepository persists the cart snapshot as a JSON file. Writes go through a temp file and
// a rename so a crash never leaves a half-written snapshot behind.
type CartRepository struct {
	path string
	mu   sync.Mutex
}

var _ repositories.CartSnapshotRepository = (*CartRepository)(nil)

// NewCartRepository constructs a file-backed repository, creating the parent directory if needed.
func NewCartRepository(path string) (*CartRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("file cart repository: path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file cart repository: create %s: %w", dir, err)
		}
	}
	return &CartRepository{path: path}, nil
}

// Path returns the snapshot location.
func (r *CartRepository) Path() string {
	return r.path
}

// Load implements repositories.CartSnapshotRepository.
func (r *CartRepository) Load(ctx context.Context) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	r.mu.Lock()
	data, err := os.ReadFile(r.path)
	r.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return domain.Cart{}, repositories.NewNotFoundError("file cart load")
	}
	if err != nil {
		return domain.Cart{}, repositories.NewUnavailableError("file cart load", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return domain.Cart{}, repositories.NewNotFoundError("file cart load")
	}
	cart, err := repositories.DecodeCart(data)
	if err != nil {
		return domain.Cart{}, repositories.NewCorruptError("file cart load", err)
	}
	return cart, nil
}

// Save implements repositories.CartSnapshotRepository.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := repositories.EncodeCart(cart)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return repositories.NewUnavailableError("file cart save", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return repositories.NewUnavailableError("file cart save", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return repositories.NewUnavailableError("file cart save", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return repositories.NewUnavailableError("file cart save", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		cleanup()
		return repositories.NewUnavailableError("file cart save", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		cleanup()
		return repositories.NewUnavailableError("file cart save", err)
	}
	return nil
}

// Ping verifies the snapshot directory is writable.
func (r *CartRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(filepath.Dir(r.path))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("file cart repository: %s is not a directory", filepath.Dir(r.path))
	}
	return nil
}
