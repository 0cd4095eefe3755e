package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server address cannot be empty")
	}
	if _, err := net.ResolveTCPAddr("tcp", c.Server.Addr); err != nil {
		return fmt.Errorf("invalid server address: %v", err)
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server rate_limit cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		return errors.New("server rate_burst must be positive when rate_limit is set")
	}

	for _, p := range c.Server.TrustedProxies {
		if _, err := parseProxy(p); err != nil {
			return fmt.Errorf("invalid trusted proxy: %v", err)
		}
	}

	if c.Auth.Enabled && c.Auth.Token == "" {
		return errors.New("auth token cannot be empty when auth is enabled")
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn cannot be empty")
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalPath == "" {
			return errors.New("storage local_path cannot be empty for the local backend")
		}
	case "minio":
		m := c.Storage.MinIO
		if m.Endpoint == "" {
			return errors.New("minio endpoint cannot be empty when minio is the storage backend")
		}
		if m.AccessKey == "" {
			return errors.New("minio access key cannot be empty when minio is the storage backend")
		}
		if m.SecretKey == "" {
			return errors.New("minio secret key cannot be empty when minio is the storage backend")
		}
		if !isValidBucketName(m.Bucket) {
			return fmt.Errorf("invalid minio bucket name: %s", m.Bucket)
		}
	default:
		return fmt.Errorf("unsupported storage backend: %q", c.Storage.Backend)
	}

	if c.Upload.MaxFileSize <= 0 {
		return errors.New("upload max_file_size must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("upload allowed_extensions cannot be empty")
	}
	for _, ext := range c.Upload.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("upload extension must start with a dot: %q", ext)
		}
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		return errors.New("audit path cannot be empty when audit is enabled")
	}
	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.Path, "/") {
		return fmt.Errorf("mcp path must start with /: %q", c.MCP.Path)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /: %q", c.Metrics.Path)
	}

	return nil
}

// isValidBucketName checks if a bucket name is valid according to MinIO/S3 rules
func isValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return bucketNamePattern.MatchString(name)
}
