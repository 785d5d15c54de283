// Package config loads agritrace settings from flags, environment variables
// (prefix AGRITRACE_) and an optional config file through viper.
package config

import (
	"fmt"
	"strings"

	"agritrace/internal/blob"
	"agritrace/internal/core"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment variables, e.g. AGRITRACE_STORAGE_DRIVER.
const EnvPrefix = "AGRITRACE"

// Keys understood by Load.
const (
	KeyStorageDriver  = "storage.driver"
	KeySQLitePath     = "storage.sqlite_path"
	KeyPostgresDSN    = "storage.postgres_dsn"
	KeyBlobDriver     = "blob.driver"
	KeyBlobFSRoot     = "blob.fs_root"
	KeyS3Bucket       = "blob.s3.bucket"
	KeyS3Region       = "blob.s3.region"
	KeyS3Endpoint     = "blob.s3.endpoint"
	KeyS3PathStyle    = "blob.s3.path_style"
	KeyHTTPAddr       = "http.addr"
	KeyHTTPOrigins    = "http.allowed_origins"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	DefaultHTTPAddr   = ":8080"
	DefaultSQLitePath = "agritrace.db"
)

// Config is the resolved runtime configuration.
type Config struct {
	Storage core.StorageConfig
	Blob    blob.Config
	HTTP    HTTPConfig
	Log     LogConfig
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string
	Format string
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults installs the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyStorageDriver, string(core.StorageSQLite))
	v.SetDefault(KeySQLitePath, DefaultSQLitePath)
	v.SetDefault(KeyPostgresDSN, "")
	v.SetDefault(KeyBlobDriver, string(blob.DriverFilesystem))
	v.SetDefault(KeyBlobFSRoot, "./blobdata")
	v.SetDefault(KeyS3Bucket, "")
	v.SetDefault(KeyS3Region, "")
	v.SetDefault(KeyS3Endpoint, "")
	v.SetDefault(KeyS3PathStyle, false)
	v.SetDefault(KeyHTTPAddr, DefaultHTTPAddr)
	v.SetDefault(KeyHTTPOrigins, []string{"*"})
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"storage-driver": KeyStorageDriver,
	"sqlite-path":    KeySQLitePath,
	"postgres-dsn":   KeyPostgresDSN,
	"blob-driver":    KeyBlobDriver,
	"blob-root":      KeyBlobFSRoot,
	"s3-bucket":      KeyS3Bucket,
	"s3-region":      KeyS3Region,
	"s3-endpoint":    KeyS3Endpoint,
	"s3-path-style":  KeyS3PathStyle,
	"http-addr":      KeyHTTPAddr,
	"log-level":      KeyLogLevel,
	"log-format":     KeyLogFormat,
}

// BindFlags binds every flag of flags listed in FlagKeys. Other flags are
// ignored.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := FlagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(strings.ToLower(strings.TrimSpace(v.GetString(KeyStorageDriver)))),
			SQLitePath:  v.GetString(KeySQLitePath),
			PostgresDSN: v.GetString(KeyPostgresDSN),
		},
		Blob: blob.Config{
			Driver: v.GetString(KeyBlobDriver),
			FSRoot: v.GetString(KeyBlobFSRoot),
			S3: blob.S3Config{
				Bucket:    v.GetString(KeyS3Bucket),
				Region:    v.GetString(KeyS3Region),
				Endpoint:  v.GetString(KeyS3Endpoint),
				PathStyle: v.GetBool(KeyS3PathStyle),
			},
		},
		HTTP: HTTPConfig{
			Addr:           v.GetString(KeyHTTPAddr),
			AllowedOrigins: v.GetStringSlice(KeyHTTPOrigins),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	switch cfg.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if strings.TrimSpace(cfg.Storage.PostgresDSN) == "" {
			return Config{}, fmt.Errorf("%s is required for the postgres driver", KeyPostgresDSN)
		}
	default:
		return Config{}, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Blob.Driver)) {
	case string(blob.DriverFilesystem), string(blob.DriverMemory):
	case string(blob.DriverS3):
		if strings.TrimSpace(cfg.Blob.S3.Bucket) == "" {
			return Config{}, fmt.Errorf("%s is required for the s3 blob driver", KeyS3Bucket)
		}
	default:
		return Config{}, fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return cfg, nil
}
