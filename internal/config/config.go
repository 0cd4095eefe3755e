package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete service configuration.
// The structure matches the config.yaml file and can be overridden by
// CONTRACTRISK_* environment variables.
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Auth     AuthConfig     `json:"auth" mapstructure:"auth"`
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Storage  StorageConfig  `json:"storage" mapstructure:"storage"`
	Upload   UploadConfig   `json:"upload" mapstructure:"upload"`
	Audit    AuditConfig    `json:"audit" mapstructure:"audit"`
	MCP      MCPConfig      `json:"mcp" mapstructure:"mcp"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
}

// ServerConfig contains server-specific configuration
type ServerConfig struct {
	Addr         string        `json:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	RateLimit    float64       `json:"rate_limit" mapstructure:"rate_limit"`
	RateBurst    int           `json:"rate_burst" mapstructure:"rate_burst"`
	CORSOrigins  []string      `json:"cors_origins" mapstructure:"cors_origins"`
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For header
	// is believed when identifying clients.
	TrustedProxies []string `json:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// TrustedNets parses TrustedProxies, skipping invalid entries. A bare IP
// becomes a single-address network.
func (s ServerConfig) TrustedNets() []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(s.TrustedProxies))
	for _, p := range s.TrustedProxies {
		if n, err := parseProxy(p); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

func parseProxy(p string) (*net.IPNet, error) {
	if strings.Contains(p, "/") {
		_, n, err := net.ParseCIDR(p)
		return n, err
	}
	ip := net.ParseIP(p)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %q", p)
	}
	bits := 128
	if ip.To4() != nil {
		ip = ip.To4()
		bits = 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

type AuthConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Token   string `json:"token" mapstructure:"token"`
}

type DatabaseConfig struct {
	Driver string `json:"driver" mapstructure:"driver"`
	DSN    string `json:"dsn" mapstructure:"dsn"`
}

// StorageConfig selects where uploaded originals are kept
type StorageConfig struct {
	Backend   string      `json:"backend" mapstructure:"backend"`
	LocalPath string      `json:"local_path" mapstructure:"local_path"`
	MinIO     MinIOConfig `json:"minio" mapstructure:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
}

type UploadConfig struct {
	MaxFileSize       int64    `json:"max_file_size" mapstructure:"max_file_size"`
	AllowedExtensions []string `json:"allowed_extensions" mapstructure:"allowed_extensions"`
}

// MaxExtractedSize bounds the decompressed content of one upload.
func (u UploadConfig) MaxExtractedSize() int64 {
	return u.MaxFileSize * 10
}

// Allowed reports whether filename carries one of the allowed extensions.
func (u UploadConfig) Allowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range u.AllowedExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

type MCPConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env first (ignore error if not present)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.contractrisk")
	v.SetEnvPrefix("CONTRACTRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Storage.LocalPath = resolvePath(cfg.Storage.LocalPath)
	cfg.Audit.Path = resolvePath(cfg.Audit.Path)
	if cfg.Database.Driver == "sqlite3" {
		cfg.Database.DSN = resolvePath(cfg.Database.DSN)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "contracts.db")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("storage.minio.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.minio.access_key", "minioadmin")
	v.SetDefault("storage.minio.secret_key", "minioadmin")
	v.SetDefault("storage.minio.bucket", "contracts")
	v.SetDefault("storage.minio.use_ssl", false)

	// 10MB, matching the upload form limit
	v.SetDefault("upload.max_file_size", 10*1024*1024)
	v.SetDefault("upload.allowed_extensions", []string{".pdf", ".doc", ".docx"})

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "audit.db")

	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.path", "/mcp")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// resolvePath resolves ~ to home directory and cleans the path
func resolvePath(p string) string {
	if p == "" {
		return p
	}
	if p[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return filepath.Clean(p)
}
