package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/steveyegge/ftaudit/internal/config"
	"github.com/steveyegge/ftaudit/internal/exclusions"
	"github.com/steveyegge/ftaudit/internal/records"
	"github.com/steveyegge/ftaudit/internal/storage"
	"github.com/steveyegge/ftaudit/internal/types"
)

// project is the loaded state every command works from
type project struct {
	root    string
	cfg     *config.File
	records []*types.Record
}

// loadProject reads config and records. An explicit records path replaces
// the configured one and is taken relative to the working directory.
func loadProject(root, recordsOverride string) (*project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}

	path := config.Resolve(abs, cfg.Records)
	if recordsOverride != "" {
		if path, err = filepath.Abs(recordsOverride); err != nil {
			return nil, fmt.Errorf("failed to resolve records path: %w", err)
		}
	}
	recs, err := records.Load(path)
	if err != nil {
		return nil, err
	}
	return &project{root: abs, cfg: cfg, records: recs}, nil
}

// openStore takes the project lock and opens the exclusion store. The
// returned func closes the store, then its backend, then releases the lock.
func (p *project) openStore(ctx context.Context, holder string) (*exclusions.Store, func() error, error) {
	lockPath, err := storage.AcquireLock(filepath.Join(p.root, config.DirName), holder)
	if err != nil {
		return nil, nil, err
	}

	store, backend, err := config.OpenExclusions(ctx, p.root, p.cfg)
	if err != nil {
		_ = storage.ReleaseLock(lockPath)
		return nil, nil, fmt.Errorf("failed to open exclusions: %w", err)
	}
	closeAll := func() error {
		// Runs after Ctrl+C too, and a pending write still deserves a flush
		storeErr := store.Close(context.WithoutCancel(ctx))
		backendErr := backend.Close()
		lockErr := storage.ReleaseLock(lockPath)
		if storeErr != nil {
			return storeErr
		}
		if backendErr != nil {
			return backendErr
		}
		return lockErr
	}
	return store, closeAll, nil
}

// closeQuietly is for deferred closes whose error has nowhere to go
func closeQuietly(c func() error) {
	_ = c()
}
