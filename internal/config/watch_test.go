package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReloadsOnFileChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "eventdesk.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  staleTime: 1s\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader("EVENTDESK", path)
	changeCh := make(chan Config, 4)
	errCh := make(chan error, 4)

	watcher, err := loader.Watch(ctx, func(cfg Config) {
		changeCh <- cfg
	}, func(err error) {
		errCh <- err
	})
	if err != nil {
		t.Fatalf("watcher failed: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(path, []byte("cache:\n  staleTime: 7s\n"), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changeCh:
			if cfg.Cache.StaleTime == "7s" {
				return
			}
		case err := <-errCh:
			t.Fatalf("unexpected error: %v", err)
		case <-deadline:
			t.Fatalf("timed out waiting for reload")
		}
	}
}

func TestWatchReportsInvalidSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "eventdesk.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  staleTime: 1s\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	changeCh := make(chan Config, 4)
	errCh := make(chan error, 4)
	watcher, err := NewLoader("EVENTDESK", path).Watch(ctx, func(cfg Config) {
		changeCh <- cfg
	}, func(err error) {
		errCh <- err
	})
	if err != nil {
		t.Fatalf("watcher failed: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(path, []byte("cache:\n  staleTime: whenever\n"), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-errCh:
			if err == nil {
				t.Fatalf("expected a validation error")
			}
			return
		case cfg := <-changeCh:
			// A truncated intermediate write may load as defaults; the invalid value never arrives.
			if cfg.Cache.StaleTime == "whenever" {
				t.Fatalf("invalid snapshot delivered: %+v", cfg.Cache)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for error")
		}
	}
}

func TestWatchRequiresFiles(t *testing.T) {
	if _, err := NewLoader("EVENTDESK").Watch(context.Background(), func(Config) {}, nil); err == nil {
		t.Fatalf("expected error without files")
	}
	if _, err := NewLoader("EVENTDESK", "x.yaml").Watch(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error without callback")
	}
}
