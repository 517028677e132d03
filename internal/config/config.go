package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"archivist/internal/infrastructure/storage"
)

const (
	envPath   = ".env"
	envPrefix = "ARCHIVIST"
	EnvLocal  = "local"
	EnvDev    = "dev"
	EnvProd   = "prod"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env      string   `mapstructure:"env"`
	Logger   Logger   `mapstructure:"logger"`
	Recorder Recorder `mapstructure:"recorder"`
	Server   Server   `mapstructure:"server"`
}

type Logger struct {
	Level string `mapstructure:"level"`
}

type Recorder struct {
	Snapshots storage.Config `mapstructure:"snapshots"`
	Versions  storage.Config `mapstructure:"versions"`
}

type Server struct {
	Address string `mapstructure:"address"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvLocal)
	v.SetDefault("logger.level", "") // пусто - уровень по окружению
	v.SetDefault("server.address", ":8080")

	for _, kind := range []string{"snapshots", "versions"} {
		prefix := "recorder." + kind + "."
		v.SetDefault(prefix+"type", storage.TypeGit)
		v.SetDefault(prefix+"git.path", "./data/"+kind)
		v.SetDefault(prefix+"git.publish", false)
		v.SetDefault(prefix+"git.prefix_message_to_snapshot_id", "")
		v.SetDefault(prefix+"git.author.name", "Archivist Bot")
		v.SetDefault(prefix+"git.author.email", "bot@archivist.local")
		v.SetDefault(prefix+"document.connection_uri", "")
		v.SetDefault(prefix+"document.database", "")
		v.SetDefault(prefix+"document.collection", kind)
	}
	v.SetDefault("recorder.versions.git.prefix_message_to_snapshot_id", "This version was recorded after filtering snapshot ")
}

// Load reads .env, the optional config file at path and ARCHIVIST_* variables, in increasing priority.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown env %q", ErrInvalidConfig, c.Env))
	}

	errs = append(errs, validateStorage("snapshots", c.Recorder.Snapshots))
	errs = append(errs, validateStorage("versions", c.Recorder.Versions))

	s, v := c.Recorder.Snapshots, c.Recorder.Versions
	if s.Type == storage.TypeGit && v.Type == storage.TypeGit && s.Git.Path == v.Git.Path {
		errs = append(errs, fmt.Errorf("%w: snapshots and versions share git path %q", ErrInvalidConfig, s.Git.Path))
	}
	if s.Type == storage.TypeDocumentDatabase && v.Type == storage.TypeDocumentDatabase &&
		s.Document.ConnectionURI == v.Document.ConnectionURI && s.Document.Database == v.Document.Database &&
		s.Document.Collection == v.Document.Collection {
		errs = append(errs, fmt.Errorf("%w: snapshots and versions share collection %q", ErrInvalidConfig, s.Document.Collection))
	}

	return errors.Join(errs...)
}

func validateStorage(name string, cfg storage.Config) error {
	switch cfg.Type {
	case storage.TypeGit:
		if cfg.Git.Path == "" {
			return fmt.Errorf("%w: %s git path is required", ErrInvalidConfig, name)
		}
	case storage.TypeDocumentDatabase:
		if cfg.Document.ConnectionURI == "" {
			return fmt.Errorf("%w: %s connection URI is required", ErrInvalidConfig, name)
		}
		if cfg.Document.Collection == "" {
			return fmt.Errorf("%w: %s collection is required", ErrInvalidConfig, name)
		}
	default:
		return fmt.Errorf("%w: %s storage type %q", ErrInvalidConfig, name, cfg.Type)
	}
	return nil
}
