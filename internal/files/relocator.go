// Package files moves staged uploads into their permanent order folder.
package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/shared"
)

const (
	stagingDir = "staging"
	ordersDir  = "orders"
	// ownerFile records which order id claimed an order number directory.
	ownerFile = ".order-id"
)

// Relocation names the staged keys to move under one order number.
type Relocation struct {
	OrderID     int64    `json:"order_id,omitempty"`
	OrderNumber string   `json:"order_number"`
	Keys        []string `json:"keys"`
}

// Relocator moves files below an explicitly configured storage root.
type Relocator struct {
	root   string
	logger *slog.Logger
}

// NewRelocator constructs a relocator rooted at root.
func NewRelocator(root string, logger *slog.Logger) *Relocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relocator{root: root, logger: logger.With(slog.String("component", "files"))}
}

// Root returns the storage root.
func (r *Relocator) Root() string { return r.root }

// Relocate moves every staged key into orders/<number>/. Keys whose source is
// missing are skipped; keys already moved count as moved. When the number was
// already claimed by another order id, the files go to orders/<number>-<id>/.
func (r *Relocator) Relocate(ctx context.Context, rel Relocation) (int, error) {
	if r.root == "" {
		return 0, errors.New("files: storage root not configured")
	}
	if rel.OrderNumber == "" || strings.ContainsAny(rel.OrderNumber, `/\`) {
		return 0, fmt.Errorf("%w: invalid order number %q", shared.ErrValidation, rel.OrderNumber)
	}
	destDir, err := r.orderDir(rel)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, key := range rel.Keys {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		src, err := r.stagedPath(key)
		if err != nil {
			return moved, err
		}
		dst := filepath.Join(destDir, filepath.Base(src))
		if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
			if _, err := os.Stat(dst); err == nil {
				moved++
				continue
			}
			r.logger.Warn("staged file missing", slog.String("order_number", rel.OrderNumber), slog.String("key", key))
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return moved, fmt.Errorf("files: move %s: %w", key, err)
		}
		moved++
	}
	return moved, nil
}

// Handle is the reconcile entry point for files.relocate effects.
func (r *Relocator) Handle(ctx context.Context, e reconcile.Effect) error {
	var rel Relocation
	if err := e.Decode(&rel); err != nil {
		return err
	}
	n, err := r.Relocate(ctx, rel)
	if err != nil {
		return err
	}
	r.logger.Info("files relocated", slog.String("order_number", rel.OrderNumber), slog.Int("moved", n))
	return nil
}

// orderDir creates and claims the destination directory of rel.
func (r *Relocator) orderDir(rel Relocation) (string, error) {
	dir := filepath.Join(r.root, ordersDir, rel.OrderNumber)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("files: create %s: %w", dir, err)
	}
	if rel.OrderID <= 0 {
		return dir, nil
	}
	owner := strconv.FormatInt(rel.OrderID, 10)
	marker := filepath.Join(dir, ownerFile)
	data, err := os.ReadFile(marker)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.WriteFile(marker, []byte(owner), 0o644); err != nil {
			return "", fmt.Errorf("files: claim %s: %w", dir, err)
		}
		return dir, nil
	case err != nil:
		return "", fmt.Errorf("files: read owner of %s: %w", dir, err)
	case strings.TrimSpace(string(data)) == owner:
		return dir, nil
	}

	r.logger.Warn("order number directory owned by another order",
		slog.String("order_number", rel.OrderNumber),
		slog.Int64("order_id", rel.OrderID),
		slog.String("owner", strings.TrimSpace(string(data))),
	)
	dir = filepath.Join(r.root, ordersDir, rel.OrderNumber+"-"+owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("files: create %s: %w", dir, err)
	}
	return dir, nil
}

func (r *Relocator) stagedPath(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.ToSlash(key))
	if clean == "/" {
		return "", fmt.Errorf("%w: empty staging key", shared.ErrValidation)
	}
	return filepath.Join(r.root, stagingDir, filepath.FromSlash(clean)), nil
}
