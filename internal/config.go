package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mailwright/internal/blob"
	"github.com/starford/mailwright/internal/codec"
	"github.com/starford/mailwright/internal/store"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
	AuthModeJWT      = "jwt"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Store  StoreConfig       `yaml:"store"`
	Local  LocalConfig       `yaml:"local"`
	Images ImagesConfig      `yaml:"images"`
	Editor EditorConfig      `yaml:"editor"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Store, &c.Local, &c.Images, &c.Editor, &c.Auth} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig selects the document database holding designs, shares,
// exports, folders and feedback.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	FirestoreProject     string `yaml:"firestore_project"`
	FirestoreCredentials string `yaml:"firestore_credentials"`

	Prefix           string        `yaml:"prefix"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
	MaxDocumentBytes int           `yaml:"max_document_bytes"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(
			store.DriverSQLite, store.DriverPostgres, store.DriverRedis, store.DriverFirestore, store.DriverMemory)),
		validation.Field(&c.SQLitePath, validation.When(c.Driver == store.DriverSQLite, validation.Required)),
		validation.Field(&c.PostgresDSN, validation.When(c.Driver == store.DriverPostgres, validation.Required)),
		validation.Field(&c.RedisAddr, validation.When(c.Driver == store.DriverRedis, validation.Required)),
		validation.Field(&c.FirestoreProject, validation.When(c.Driver == store.DriverFirestore, validation.Required)),
		validation.Field(&c.ReadyTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxDocumentBytes, validation.Required, validation.Min(1024)),
	)
}

// Options converts the section into store options.
func (c *StoreConfig) Options() store.Options {
	return store.Options{
		Driver:               c.Driver,
		SQLitePath:           c.SQLitePath,
		PostgresDSN:          c.PostgresDSN,
		RedisAddr:            c.RedisAddr,
		RedisPassword:        c.RedisPassword,
		RedisDB:              c.RedisDB,
		FirestoreProject:     c.FirestoreProject,
		FirestoreCredentials: c.FirestoreCredentials,
		Prefix:               c.Prefix,
		ReadyTimeout:         c.ReadyTimeout,
		MaxDocumentBytes:     c.MaxDocumentBytes,
	}
}

// LocalConfig holds the on-disk locations for file handles and local
// drafts.
type LocalConfig struct {
	// DesignsDir holds design files opened and saved by path. Empty
	// disables file handles.
	DesignsDir       string `yaml:"designs_dir"`
	DraftsSQLitePath string `yaml:"drafts_sqlite_path"`
}

// Validate validates the local configuration.
func (c *LocalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DraftsSQLitePath, validation.Required),
	)
}

// ImagesConfig selects where uploaded images are hosted.
type ImagesConfig struct {
	Driver   string `yaml:"driver"`
	MaxBytes int    `yaml:"max_bytes"`

	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`

	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`

	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PublicURL string `yaml:"public_url"`

	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Validate validates the images configuration.
func (c *ImagesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(blob.DriverFS, blob.DriverSupabase, blob.DriverS3)),
		validation.Field(&c.MaxBytes, validation.Min(0)),
		validation.Field(&c.Dir, validation.When(c.Driver == blob.DriverFS, validation.Required)),
		validation.Field(&c.SupabaseURL, validation.When(c.Driver == blob.DriverSupabase, validation.Required)),
		validation.Field(&c.SupabaseKey, validation.When(c.Driver == blob.DriverSupabase, validation.Required)),
		validation.Field(&c.Bucket, validation.When(c.Driver != blob.DriverFS, validation.Required)),
		validation.Field(&c.Region, validation.When(c.Driver == blob.DriverS3, validation.Required)),
	)
}

// Options converts the section into blob options.
func (c *ImagesConfig) Options() blob.Options {
	return blob.Options{
		Driver:      c.Driver,
		Dir:         c.Dir,
		BaseURL:     c.BaseURL,
		SupabaseURL: c.SupabaseURL,
		SupabaseKey: c.SupabaseKey,
		Region:      c.Region,
		Endpoint:    c.Endpoint,
		PublicURL:   c.PublicURL,
		Bucket:      c.Bucket,
		Prefix:      c.Prefix,
	}
}

// EditorConfig tunes the editing session.
type EditorConfig struct {
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	LoadTimeout      time.Duration `yaml:"load_timeout"`
	// CatalogPath overrides the built-in template catalog.
	CatalogPath string `yaml:"catalog_path"`
	// EventThrottle coalesces session.changed events.
	EventThrottle time.Duration `yaml:"event_throttle"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AutosaveInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.LoadTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.EventThrottle, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//   - "jwt": Bearer HS256 JWT; JWTSecret must be non-empty.
type AuthConfig struct {
	Mode      string `yaml:"mode"`
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken, AuthModeJWT)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	if c.Mode == AuthModeJWT && c.JWTSecret == "" {
		return fmt.Errorf("auth: mode is %q but jwt_secret is empty", AuthModeJWT)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken || c.Mode == AuthModeJWT
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Driver:           store.DriverSQLite,
			SQLitePath:       "./data/mailwright.db",
			Prefix:           "mailwright",
			ReadyTimeout:     10 * time.Second,
			MaxDocumentBytes: codec.MaxDocumentBytes,
		},
		Local: LocalConfig{
			DesignsDir:       "./designs",
			DraftsSQLitePath: "./data/drafts.db",
		},
		Images: ImagesConfig{
			Driver:  blob.DriverFS,
			Dir:     "./data/images",
			BaseURL: "/images",
		},
		Editor: EditorConfig{
			AutosaveInterval: 2 * time.Minute,
			LoadTimeout:      30 * time.Second,
			EventThrottle:    250 * time.Millisecond,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
