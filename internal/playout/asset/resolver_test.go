package asset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alxayo/playout-engine/internal/perr"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(Config{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestResolveLocalPath(t *testing.T) {
	r := newTestResolver(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mov")
	if err := os.WriteFile(path, []byte("fake media"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := r.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != path {
		t.Errorf("expected %q, got %q", path, got)
	}
}

func TestResolveFileScheme(t *testing.T) {
	r := newTestResolver(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mov")
	if err := os.WriteFile(path, []byte("fake media"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := r.Resolve("file://" + path)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != path {
		t.Errorf("expected %q, got %q", path, got)
	}
}

func TestResolveMissingLocalPath(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve(filepath.Join(t.TempDir(), "missing.mov"))
	if err == nil {
		t.Fatal("expected error for missing path")
	}
	var ae *perr.AssetError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AssetError, got %T: %v", err, err)
	}
	if ae.Kind != perr.AssetMissing {
		t.Errorf("expected AssetMissing kind, got %v", ae.Kind)
	}
}

func TestResolveEmptyURI(t *testing.T) {
	r := newTestResolver(t)

	if _, err := r.Resolve(""); err == nil {
		t.Fatal("expected error for empty uri")
	}
}

func TestResolveAzblobWithoutAccountFails(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve("azblob://mycontainer/path/to/clip.mov")
	if err == nil {
		t.Fatal("expected error: no azure account configured")
	}
}

func TestResolveUnsupportedScheme(t *testing.T) {
	r := newTestResolver(t)

	if _, err := r.Resolve("rtmp://example.com/live/stream"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
