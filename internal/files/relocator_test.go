package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/shared"
)

func writeStaged(t *testing.T, root, key, body string) {
	t.Helper()
	path := filepath.Join(root, stagingDir, key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRelocateMovesStagedFiles(t *testing.T) {
	root := t.TempDir()
	writeStaged(t, root, "u1/cover.pdf", "cover")
	writeStaged(t, root, "u1/inner.pdf", "inner")

	r := NewRelocator(root, nil)
	n, err := r.Relocate(context.Background(), Relocation{OrderNumber: "240115-001", Keys: []string{"u1/cover.pdf", "u1/inner.pdf", "u1/missing.pdf"}})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	body, err := os.ReadFile(filepath.Join(root, ordersDir, "240115-001", "cover.pdf"))
	require.NoError(t, err)
	require.Equal(t, "cover", string(body))
	_, err = os.Stat(filepath.Join(root, stagingDir, "u1", "cover.pdf"))
	require.True(t, os.IsNotExist(err))
}

func TestRelocateIsRepeatable(t *testing.T) {
	root := t.TempDir()
	writeStaged(t, root, "a.pdf", "a")
	r := NewRelocator(root, nil)
	rel := Relocation{OrderNumber: "240115-002", Keys: []string{"a.pdf"}}

	n, err := r.Relocate(context.Background(), rel)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = r.Relocate(context.Background(), rel)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRelocateKeepsKeysInsideStaging(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	r := NewRelocator(root, nil)
	n, err := r.Relocate(context.Background(), Relocation{OrderNumber: "240115-003", Keys: []string{"../secret.txt"}})
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = os.Stat(outside)
	require.NoError(t, err)
}

func TestRelocateRejectsBadOrderNumber(t *testing.T) {
	r := NewRelocator(t.TempDir(), nil)
	_, err := r.Relocate(context.Background(), Relocation{OrderNumber: "../x"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestHandleDecodesEffect(t *testing.T) {
	root := t.TempDir()
	writeStaged(t, root, "b.pdf", "b")
	r := NewRelocator(root, nil)
	e := reconcile.NewEffect(reconcile.KindFileRelocation, 5, Relocation{OrderNumber: "240115-004", Keys: []string{"b.pdf"}})
	require.NoError(t, r.Handle(context.Background(), e))
	_, err := os.Stat(filepath.Join(root, ordersDir, "240115-004", "b.pdf"))
	require.NoError(t, err)
}

func TestRelocateSeparatesReusedOrderNumber(t *testing.T) {
	root := t.TempDir()
	writeStaged(t, root, "first/cover.pdf", "first")
	writeStaged(t, root, "second/cover.pdf", "second")
	r := NewRelocator(root, nil)
	ctx := context.Background()

	n, err := r.Relocate(ctx, Relocation{OrderID: 7, OrderNumber: "240115-009", Keys: []string{"first/cover.pdf"}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = r.Relocate(ctx, Relocation{OrderID: 7, OrderNumber: "240115-009", Keys: []string{"first/cover.pdf"}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = r.Relocate(ctx, Relocation{OrderID: 12, OrderNumber: "240115-009", Keys: []string{"second/cover.pdf"}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	body, err := os.ReadFile(filepath.Join(root, ordersDir, "240115-009", "cover.pdf"))
	require.NoError(t, err)
	require.Equal(t, "first", string(body))
	body, err = os.ReadFile(filepath.Join(root, ordersDir, "240115-009-12", "cover.pdf"))
	require.NoError(t, err)
	require.Equal(t, "second", string(body))
}
