package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)
	for _, key := range []string{
		"PORT", "CORS_ALLOWED_ORIGINS", "WS_SEND_BUFFER", "WS_WRITE_WAIT", "WS_PONG_WAIT",
		"WS_PING_INTERVAL", "WS_READ_LIMIT", "STORAGE_DRIVER", "BADGER_PATH", "DATABASE_URL", "LOG_LEVEL", "LOG_FORMAT",
	} {
		// Setenv restores the original value on cleanup; the key must be absent for defaults to apply.
		t.Setenv(key, "")
		req.NoError(os.Unsetenv(key))
	}

	cfg, err := Load()
	req.NoError(err)
	req.Equal(":8080", cfg.Server.Addr)
	req.Equal(64, cfg.Relay.SendBuffer)
	req.Equal(60*time.Second, cfg.Relay.PongWait)
	req.Equal(54*time.Second, cfg.Relay.PingInterval)
	req.Equal(StorageMemory, cfg.Storage.Driver)
	req.Equal("info", cfg.Log.Level)
}

func TestLoadPostgresDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://physio@localhost/consult?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoragePostgres, cfg.Storage.Driver)
	require.Equal(t, "postgres://physio@localhost/consult?sslmode=disable", cfg.Storage.DatabaseURL)
}

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":               ":8080",
		"9000":           ":9000",
		":9000":          ":9000",
		"127.0.0.1:9000": "127.0.0.1:9000",
	}
	for in, want := range cases {
		got, err := normalizeAddr(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := normalizeAddr("80 80")
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("storage driver", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "sqlite")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("ping not shorter than pong", func(t *testing.T) {
		t.Setenv("WS_PING_INTERVAL", "90s")
		t.Setenv("WS_PONG_WAIT", "60s")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "loud")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("send buffer", func(t *testing.T) {
		t.Setenv("WS_SEND_BUFFER", "0")
		_, err := Load()
		require.Error(t, err)
	})
}
