// Package asset resolves a segment's asset URI — a local path or a
// remote azblob:// URI — to a decoder-ready local file path. This is
// the one collaborator a SeamPreparer calls before constructing a
// decoder (see seam.PathResolver); decoding itself remains out of the
// engine's scope.
package asset

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/fsnotify/fsnotify"

	"github.com/alxayo/playout-engine/internal/perr"
)

// Config controls how a Resolver resolves asset URIs and where it
// caches remote blobs.
type Config struct {
	// CacheDir is where azblob:// assets are synced to before a
	// decoder can open them.
	CacheDir string
	// AccountURL is the Azure Storage account blob endpoint, e.g.
	// "https://<account>.blob.core.windows.net". Left empty, the
	// Resolver only serves local paths and fails fast on azblob:// URIs.
	AccountURL string
	// FetchTimeout bounds how long Resolve waits for a remote blob to
	// land in the cache, whether the fetch was started by this call or
	// is already in flight from a concurrent resolve of the same asset.
	FetchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CacheDir == "" {
		c.CacheDir = "/var/cache/playout-engine/assets"
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 30 * time.Second
	}
	return c
}

// Resolver resolves FedBlock segment asset URIs to decoder-ready local
// paths. Remote blobs are synced into CacheDir once; a fsnotify watch
// on the cache tree lets a second SeamPreparer that resolves the same
// URI while a fetch is already running wait on the file's arrival
// instead of polling os.Stat in a loop.
type Resolver struct {
	cfg    Config
	client *azblob.Client

	watcher *fsnotify.Watcher

	mu       sync.Mutex
	waiters  map[string][]chan struct{}
	inflight map[string]bool
}

// NewResolver constructs a Resolver and starts its cache-fill watch
// goroutine. Callers must Close it at session end.
func NewResolver(cfg Config) (*Resolver, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("asset: create cache dir: %w", err)
	}

	r := &Resolver{
		cfg:      cfg,
		waiters:  make(map[string][]chan struct{}),
		inflight: make(map[string]bool),
	}

	if cfg.AccountURL != "" {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("asset: azure credential: %w", err)
		}
		client, err := azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("asset: azure client: %w", err)
		}
		r.client = client
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("asset: fsnotify watcher: %w", err)
	}
	if err := watcher.Add(cfg.CacheDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("asset: watch cache dir: %w", err)
	}
	r.watcher = watcher
	go r.watchLoop()

	return r, nil
}

// Resolve implements seam.PathResolver: assetURI is a plain/file:// path
// or an azblob://container/blob/path URI.
func (r *Resolver) Resolve(assetURI string) (string, error) {
	if assetURI == "" {
		return "", perr.NewAssetError(perr.AssetMissing, assetURI, errors.New("empty asset uri"))
	}

	u, err := url.Parse(assetURI)
	if err != nil {
		return "", perr.NewAssetError(perr.AssetMissing, assetURI, err)
	}

	switch u.Scheme {
	case "", "file":
		path := u.Path
		if path == "" {
			path = assetURI
		}
		if _, err := os.Stat(path); err != nil {
			return "", perr.NewAssetError(perr.AssetMissing, assetURI, err)
		}
		return path, nil
	case "azblob":
		return r.resolveAzblob(u, assetURI)
	default:
		return "", perr.NewAssetError(perr.AssetMissing, assetURI, fmt.Errorf("unsupported asset scheme %q", u.Scheme))
	}
}

func (r *Resolver) resolveAzblob(u *url.URL, assetURI string) (string, error) {
	if r.client == nil {
		return "", perr.NewAssetError(perr.AssetMissing, assetURI, errors.New("no azure storage account configured"))
	}

	container := u.Host
	blobPath := strings.TrimPrefix(u.Path, "/")
	if container == "" || blobPath == "" {
		return "", perr.NewAssetError(perr.AssetMissing, assetURI, fmt.Errorf("malformed azblob uri %q", assetURI))
	}

	localPath := filepath.Join(r.cfg.CacheDir, container, filepath.FromSlash(blobPath))
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	done := r.registerWaiter(localPath)
	if r.claimFetch(localPath) {
		go r.fetch(container, blobPath, localPath)
	}

	select {
	case <-done:
	case <-time.After(r.cfg.FetchTimeout):
		return "", perr.NewAssetError(perr.AssetDecodeFailed, assetURI, fmt.Errorf("cache fill timed out after %s", r.cfg.FetchTimeout))
	}

	if _, err := os.Stat(localPath); err != nil {
		return "", perr.NewAssetError(perr.AssetDecodeFailed, assetURI, err)
	}
	return localPath, nil
}

func (r *Resolver) registerWaiter(localPath string) chan struct{} {
	ch := make(chan struct{})
	r.mu.Lock()
	r.waiters[localPath] = append(r.waiters[localPath], ch)
	r.mu.Unlock()
	return ch
}

// claimFetch reports whether the caller is the first to start fetching
// localPath; a second concurrent resolve of the same asset just waits.
func (r *Resolver) claimFetch(localPath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[localPath] {
		return false
	}
	r.inflight[localPath] = true
	return true
}

func (r *Resolver) fetch(container, blobPath, localPath string) {
	defer func() {
		r.mu.Lock()
		delete(r.inflight, localPath)
		r.mu.Unlock()
	}()

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	// Watch the blob's own subdirectory too; the top-level cache dir
	// watch alone doesn't see renames inside a freshly created subtree
	// on every platform.
	_ = r.watcher.Add(dir)

	tmpPath := localPath + ".partial"
	f, err := os.Create(tmpPath)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FetchTimeout)
	defer cancel()

	_, err = r.client.DownloadFile(ctx, container, blobPath, f, nil)
	closeErr := f.Close()
	if err != nil || closeErr != nil {
		os.Remove(tmpPath)
		return
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return
	}
	// os.Rename into a watched directory fires fsnotify.Create for
	// localPath, which watchLoop turns into a waiter notification; also
	// notify synchronously in case the watch lagged the rename.
	r.notify(localPath)
}

func (r *Resolver) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				r.notify(event.Name)
			}
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (r *Resolver) notify(path string) {
	r.mu.Lock()
	chans := r.waiters[path]
	delete(r.waiters, path)
	r.mu.Unlock()
	for _, ch := range chans {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

// Close stops the cache-fill watch goroutine.
func (r *Resolver) Close() error {
	return r.watcher.Close()
}
