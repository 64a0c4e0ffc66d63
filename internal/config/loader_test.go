package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) []string
		wantErr bool
		assert  func(t *testing.T, cfg Config)
	}{
		{
			name: "returns defaults when no overrides",
			setup: func(t *testing.T) []string {
				return nil
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 8080, cfg.Server.Listen.Port)
				require.Equal(t, "http://localhost:3000", cfg.Backend.BaseURL)
				require.Equal(t, "10s", cfg.Queries.EventStaleTime)
				require.Equal(t, "5s", cfg.Queries.RecentStaleTime)
				require.Equal(t, 3, cfg.Queries.RecentMax)
				require.Equal(t, "none", cfg.Cache.Snapshot.Backend)
			},
		},
		{
			name: "merges yaml overrides",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "eventdesk.yaml")
				require.NoError(t, os.WriteFile(path, []byte("server:\n  listen:\n    port: 9090\nbackend:\n  baseURL: http://events.internal:3000\n"), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9090, cfg.Server.Listen.Port)
				require.Equal(t, "http://events.internal:3000", cfg.Backend.BaseURL)
			},
		},
		{
			name: "merges json overrides",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "eventdesk.json")
				require.NoError(t, os.WriteFile(path, []byte(`{"cache":{"gcTime":"30s"},"queries":{"recentMax":5}}`), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "30s", cfg.Cache.GCTime)
				require.Equal(t, 5, cfg.Queries.RecentMax)
			},
		},
		{
			name: "merges toml overrides",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "eventdesk.toml")
				require.NoError(t, os.WriteFile(path, []byte("[cache.snapshot]\nbackend = \"memory\"\nttl = \"1m\"\n"), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "memory", cfg.Cache.Snapshot.Backend)
				require.Equal(t, "1m", cfg.Cache.Snapshot.TTL)
			},
		},
		{
			name: "prefers env overrides",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "eventdesk.yaml")
				require.NoError(t, os.WriteFile(path, []byte("server:\n  listen:\n    port: 9090\n"), 0o600))
				t.Setenv("EVENTDESK_SERVER__LISTEN__PORT", "9091")
				t.Setenv("EVENTDESK_BACKEND__BASEURL", "http://env-host:4000")
				t.Setenv("EVENTDESK_QUERIES__EVENTSTALETIME", "20s")
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9091, cfg.Server.Listen.Port)
				require.Equal(t, "http://env-host:4000", cfg.Backend.BaseURL)
				require.Equal(t, "20s", cfg.Queries.EventStaleTime)
			},
		},
		{
			name: "fails when file missing",
			setup: func(t *testing.T) []string {
				return []string{filepath.Join(t.TempDir(), "missing.yaml")}
			},
			wantErr: true,
		},
		{
			name: "fails on unsupported extension",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "eventdesk.ini")
				require.NoError(t, os.WriteFile(path, []byte("port=1"), 0o600))
				return []string{path}
			},
			wantErr: true,
		},
		{
			name: "fails validation on bad duration",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "eventdesk.yaml")
				require.NoError(t, os.WriteFile(path, []byte("cache:\n  staleTime: soon\n"), 0o600))
				return []string{path}
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files := tc.setup(t)
			cfg, err := NewLoader("EVENTDESK", files...).Load(context.Background())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.assert != nil {
				tc.assert(t, cfg)
			}
		})
	}
}

func TestLoaderHonoursCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: {}\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader("EVENTDESK", path).Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoaderFilesSkipsBlankEntries(t *testing.T) {
	loader := NewLoader("EVENTDESK", "", "a.yaml", "  ")
	require.Equal(t, []string{"a.yaml"}, loader.Files())
}
