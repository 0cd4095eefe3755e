package config

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":3001", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxFileSize)
	assert.Equal(t, []string{".pdf", ".doc", ".docx"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, "/mcp", cfg.MCP.Path)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
server:
  addr: ":9090"
database:
  dsn: "risk.db"
upload:
  allowed_extensions: [".pdf", ".txt"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("CONTRACTRISK_AUTH_ENABLED", "true")
	t.Setenv("CONTRACTRISK_AUTH_TOKEN", "s3cret")
	t.Setenv("CONTRACTRISK_STORAGE_MINIO_BUCKET", "legal-docs")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "risk.db", cfg.Database.DSN)
	assert.Equal(t, []string{".pdf", ".txt"}, cfg.Upload.AllowedExtensions)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.Token)
	assert.Equal(t, "legal-docs", cfg.Storage.MinIO.Bucket)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server address cannot be empty"},
		{"bad addr", func(c *Config) { c.Server.Addr = "localhost:notaport" }, "invalid server address"},
		{"auth without token", func(c *Config) { c.Auth.Enabled = true }, "auth token cannot be empty"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database dsn cannot be empty"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "unsupported storage backend"},
		{"bad bucket", func(c *Config) {
			c.Storage.Backend = "minio"
			c.Storage.MinIO.Bucket = "Bad_Bucket"
		}, "invalid minio bucket name"},
		{"minio without keys", func(c *Config) {
			c.Storage.Backend = "minio"
			c.Storage.MinIO.SecretKey = ""
		}, "minio secret key cannot be empty"},
		{"zero max size", func(c *Config) { c.Upload.MaxFileSize = 0 }, "max_file_size must be positive"},
		{"extension without dot", func(c *Config) { c.Upload.AllowedExtensions = []string{"pdf"} }, "must start with a dot"},
		{"rate without burst", func(c *Config) { c.Server.RateBurst = 0 }, "rate_burst must be positive"},
		{"mcp path", func(c *Config) { c.MCP.Path = "mcp" }, "mcp path must start with /"},
		{"bad proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/33"} }, "invalid trusted proxy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUploadAllowed(t *testing.T) {
	u := UploadConfig{AllowedExtensions: []string{".pdf", ".DOCX"}}
	assert.True(t, u.Allowed("contract.PDF"))
	assert.True(t, u.Allowed("msa.docx"))
	assert.False(t, u.Allowed("notes.txt"))
	assert.False(t, u.Allowed("noext"))
	assert.Equal(t, int64(0), u.MaxExtractedSize())

	u.MaxFileSize = 1024
	assert.Equal(t, int64(10240), u.MaxExtractedSize())
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Auth.Token = "token"
	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = "postgres://user:pw@db/contracts"

	safe := cfg.Redacted()
	assert.Equal(t, "***", safe.Auth.Token)
	assert.Equal(t, "***", safe.Storage.MinIO.SecretKey)
	assert.Equal(t, "***", safe.Database.DSN)
	assert.Equal(t, "token", cfg.Auth.Token)
}

func TestConfigAPI(t *testing.T) {
	cfg := Default()
	cfg.Auth.Token = "secret"
	shared := NewShared(cfg)
	api := NewConfigAPI(shared)

	t.Run("get masks secrets", func(t *testing.T) {
		rec := httptest.NewRecorder()
		api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/configure", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret")
		assert.NotContains(t, rec.Body.String(), "minioadmin")
	})

	t.Run("section", func(t *testing.T) {
		rec := httptest.NewRecorder()
		api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/configure/sections/upload", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var upload UploadConfig
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))
		assert.Equal(t, cfg.Upload.MaxFileSize, upload.MaxFileSize)

		rec = httptest.NewRecorder()
		api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/configure/sections/llm", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("validate", func(t *testing.T) {
		body := []byte(`{"database":{"driver":"oracle","dsn":"x"}}`)
		rec := httptest.NewRecorder()
		api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/configure/validate", bytes.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "unsupported database driver")

		body = []byte(`{"server":{"addr":":8081","rate_limit":5,"rate_burst":10}}`)
		rec = httptest.NewRecorder()
		api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/configure/validate", bytes.NewReader(body)))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("reload", func(t *testing.T) {
		reloaded := Default()
		reloaded.Server.Addr = ":7000"
		api.load = func() (*Config, error) { return reloaded, nil }

		rec := httptest.NewRecorder()
		api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/configure/reload", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ":7000", shared.Load().Server.Addr)
		assert.Equal(t, ":3001", cfg.Server.Addr)
	})

	t.Run("reload rejects invalid config", func(t *testing.T) {
		before := shared.Load()
		broken := Default()
		broken.Auth.Enabled = true
		api.load = func() (*Config, error) { return broken, nil }

		rec := httptest.NewRecorder()
		api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/configure/reload", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Same(t, before, shared.Load())
	})
}

func TestConfigAPI_ConcurrentReload(t *testing.T) {
	shared := NewShared(Default())
	api := NewConfigAPI(shared)
	api.load = func() (*Config, error) {
		cfg := Default()
		cfg.Auth.Enabled = true
		cfg.Auth.Token = "rotated"
		return cfg, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/configure/reload", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				auth := shared.Load().Auth
				if auth.Enabled {
					assert.Equal(t, "rotated", auth.Token)
				}
			}
		}()
	}
	wg.Wait()
	assert.True(t, shared.Load().Auth.Enabled)
}

func TestRestartRequired(t *testing.T) {
	old := Default()
	next := Default()
	next.Auth.Enabled = true
	next.Server.CORSOrigins = []string{"https://legal.example.com"}
	assert.Empty(t, restartRequired(old, next))

	next.Server.Addr = ":9000"
	next.Database.DSN = "other.db"
	assert.Equal(t, []string{"server.addr", "database"}, restartRequired(old, next))
}

func TestTrustedNets(t *testing.T) {
	s := ServerConfig{TrustedProxies: []string{"10.0.0.0/8", "192.168.1.5", "::1", "bogus"}}
	nets := s.TrustedNets()
	require.Len(t, nets, 3)
	assert.True(t, nets[0].Contains(net.ParseIP("10.1.2.3")))
	assert.True(t, nets[1].Contains(net.ParseIP("192.168.1.5")))
	assert.False(t, nets[1].Contains(net.ParseIP("192.168.1.6")))
	assert.True(t, nets[2].Contains(net.ParseIP("::1")))
}
