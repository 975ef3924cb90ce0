package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/damacus/r2-dashboard/internal/services"
	"gopkg.in/yaml.v3"
)

// Config is everything the server needs to reach one bucket and serve it.
type Config struct {
	BucketName      string `yaml:"bucket_name"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Endpoint        string `yaml:"endpoint"`
	PublicDomain    string `yaml:"public_domain"`
	Region          string `yaml:"region"`
	Backend         string `yaml:"backend"`

	Port                 int  `yaml:"port"`
	MaxUploadFiles       int  `yaml:"max_upload_files"`
	MaxUploadMB          int  `yaml:"max_upload_mb"`
	Concurrency          int  `yaml:"concurrency"`
	PreviewExpirySeconds int  `yaml:"preview_expiry_seconds"`
	UsageFromAdmin       bool `yaml:"usage_from_admin"`

	// Basic auth is enabled when both are set
	AuthUser     string `yaml:"auth_user"`
	AuthPassword string `yaml:"auth_password"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Backend:              services.BackendS3,
		Region:               "auto",
		Port:                 9002,
		MaxUploadFiles:       10,
		MaxUploadMB:          100,
		Concurrency:          8,
		PreviewExpirySeconds: 3600,
	}
}

// Load applies defaults, then the YAML file at path (if any), then the
// environment. A path that does not exist is an error; an empty path is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		names []string
		dst   *string
	}{
		{[]string{"R2_BUCKET_NAME"}, &c.BucketName},
		{[]string{"R2_ACCESS_KEY_ID"}, &c.AccessKeyID},
		{[]string{"R2_ACCESS_KEY_SECRET", "R2_SECRET_ACCESS_KEY"}, &c.AccessKeySecret},
		{[]string{"R2_ENDPOINT"}, &c.Endpoint},
		{[]string{"R2_PUBLIC_DOMAIN", "DRAFT_DOMAIN"}, &c.PublicDomain},
		{[]string{"R2_REGION"}, &c.Region},
		{[]string{"STORAGE_BACKEND"}, &c.Backend},
		{[]string{"DASHBOARD_USER"}, &c.AuthUser},
		{[]string{"DASHBOARD_PASSWORD"}, &c.AuthPassword},
	}
	for _, s := range strs {
		for _, name := range s.names {
			if v, ok := lookup(name); ok && v != "" {
				*s.dst = v
				break
			}
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"PORT", &c.Port},
		{"MAX_UPLOAD_FILES", &c.MaxUploadFiles},
		{"MAX_UPLOAD_MB", &c.MaxUploadMB},
		{"CONCURRENCY", &c.Concurrency},
		{"PREVIEW_EXPIRY_SECONDS", &c.PreviewExpirySeconds},
	}
	for _, i := range ints {
		v, ok := lookup(i.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", i.name, err)
		}
		*i.dst = n
	}

	if v, ok := lookup("USAGE_FROM_ADMIN"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("USAGE_FROM_ADMIN: %w", err)
		}
		c.UsageFromAdmin = b
	}
	return nil
}

// Overrides holds CLI flag values. Empty or zero fields are ignored.
type Overrides struct {
	Port     int
	Backend  string
	Bucket   string
	Endpoint string
}

// Merge applies CLI flag overrides. Flags take precedence over everything else.
func (c *Config) Merge(o Overrides) {
	if o.Port != 0 {
		c.Port = o.Port
	}
	if o.Backend != "" {
		c.Backend = o.Backend
	}
	if o.Bucket != "" {
		c.BucketName = o.Bucket
	}
	if o.Endpoint != "" {
		c.Endpoint = o.Endpoint
	}
}

// Validate checks that the store can be reached with these settings
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case services.BackendS3, services.BackendMinio:
		if c.BucketName == "" {
			errs = append(errs, errors.New("bucket name is required (R2_BUCKET_NAME)"))
		}
		if c.Endpoint == "" {
			errs = append(errs, errors.New("endpoint is required (R2_ENDPOINT)"))
		}
		if c.AccessKeyID == "" || c.AccessKeySecret == "" {
			errs = append(errs, errors.New("access key id and secret are required (R2_ACCESS_KEY_ID, R2_ACCESS_KEY_SECRET)"))
		}
	case services.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want s3, minio or memory)", c.Backend))
	}

	if c.UsageFromAdmin && c.Backend != services.BackendMinio {
		errs = append(errs, errors.New("usage_from_admin needs the minio backend"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.MaxUploadFiles <= 0 {
		errs = append(errs, errors.New("max_upload_files must be positive"))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("max_upload_mb must be positive"))
	}
	if (c.AuthUser == "") != (c.AuthPassword == "") {
		errs = append(errs, errors.New("auth_user and auth_password must be set together"))
	}

	return errors.Join(errs...)
}

// StoreConfig returns the connection settings for services.NewObjectStore
func (c *Config) StoreConfig() services.StoreConfig {
	return services.StoreConfig{
		Backend:   c.Backend,
		Endpoint:  c.Endpoint,
		Region:    c.Region,
		Bucket:    c.BucketName,
		AccessKey: c.AccessKeyID,
		SecretKey: c.AccessKeySecret,
	}
}

// PreviewExpiry is PreviewExpirySeconds as a duration
func (c *Config) PreviewExpiry() time.Duration {
	return time.Duration(c.PreviewExpirySeconds) * time.Second
}

// MaxUploadBytes is the per-file upload limit
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// AuthEnabled reports whether basic auth should guard the server
func (c *Config) AuthEnabled() bool {
	return c.AuthUser != "" && c.AuthPassword != ""
}
