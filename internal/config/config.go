// Package config loads dockstrap configuration: built-in defaults, an optional
// YAML file, then DOCKSTRAP_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (DOCKSTRAP_PROJECT_NAME, ...).
const EnvPrefix = "DOCKSTRAP"

// Config is the root configuration for a bootstrap run.
type Config struct {
	// BaseDir is the directory the project is materialised in. Empty means the
	// process working directory, resolved once by the CLI.
	BaseDir string `mapstructure:"base_dir"`

	Project   ProjectConfig   `mapstructure:"project"`
	Python    PythonConfig    `mapstructure:"python"`
	Image     ImageConfig     `mapstructure:"image"`
	Compose   ComposeConfig   `mapstructure:"compose"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Django    DjangoConfig    `mapstructure:"django"`
	Preflight PreflightConfig `mapstructure:"preflight"`
	Launch    LaunchConfig    `mapstructure:"launch"`
	Log       LogConfig       `mapstructure:"log"`
}

type ProjectConfig struct {
	Name string `mapstructure:"name"`
}

type PythonConfig struct {
	Interpreter          string   `mapstructure:"interpreter"`
	VenvDir              string   `mapstructure:"venv_dir"`
	Packages             []string `mapstructure:"packages"`
	Generator            string   `mapstructure:"generator"`
	FrameworkRequirement string   `mapstructure:"framework_requirement"`
	Denylist             []string `mapstructure:"denylist"`
}

type ImageConfig struct {
	BaseImage string `mapstructure:"base_image"`
	Workdir   string `mapstructure:"workdir"`
	Port      int    `mapstructure:"port"`
	Workers   int    `mapstructure:"workers"`
	BindHost  string `mapstructure:"bind_host"`
	User      string `mapstructure:"user"`
}

type ComposeConfig struct {
	Command    []string `mapstructure:"command"`
	AppService string   `mapstructure:"app_service"`
	DBService  string   `mapstructure:"db_service"`
	DBImage    string   `mapstructure:"db_image"`
	DBVolume   string   `mapstructure:"db_volume"`
}

type DatabaseConfig struct {
	Engine   string `mapstructure:"engine"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
}

type DjangoConfig struct {
	// SecretKey pins SECRET_KEY in .env. Empty keeps the key already present
	// in .env, or generates one on first emission.
	SecretKey string `mapstructure:"secret_key"`
	// SecretKeyFallback is the literal default baked into settings.py.
	SecretKeyFallback string `mapstructure:"secret_key_fallback"`
	Debug             bool   `mapstructure:"debug"`
	// DebugFallback is the literal default baked into settings.py.
	DebugFallback string `mapstructure:"debug_fallback"`
}

type PreflightConfig struct {
	CheckDaemon bool   `mapstructure:"check_daemon"`
	DockerHost  string `mapstructure:"docker_host"`
}

type LaunchConfig struct {
	Skip      bool `mapstructure:"skip"`
	Superuser bool `mapstructure:"superuser"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the DOCKSTRAP_ prefix (e.g. DOCKSTRAP_IMAGE_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without consulting files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_dir", "")

	v.SetDefault("project.name", "my_docker_django_app")

	v.SetDefault("python.interpreter", "python3")
	v.SetDefault("python.venv_dir", "venv")
	v.SetDefault("python.packages", []string{"django", "gunicorn", "psycopg2-binary"})
	v.SetDefault("python.generator", "django-admin")
	v.SetDefault("python.framework_requirement", "Django>=4.2")
	v.SetDefault("python.denylist", []string{"pkg-resources==0.0.0", "pkg_resources==0.0.0"})

	v.SetDefault("image.base_image", "python:3.11-slim")
	v.SetDefault("image.workdir", "/app")
	v.SetDefault("image.port", 8000)
	v.SetDefault("image.workers", 3)
	v.SetDefault("image.bind_host", "0.0.0.0")
	v.SetDefault("image.user", "appuser")

	v.SetDefault("compose.command", []string{"docker", "compose"})
	v.SetDefault("compose.app_service", "web")
	v.SetDefault("compose.db_service", "db")
	v.SetDefault("compose.db_image", "postgres:15")
	v.SetDefault("compose.db_volume", "postgres_data")

	v.SetDefault("database.engine", "django.db.backends.postgresql")
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", 5432)

	v.SetDefault("django.secret_key", "")
	v.SetDefault("django.secret_key_fallback", "django-insecure-change-me")
	v.SetDefault("django.debug", true)
	v.SetDefault("django.debug_fallback", "0")

	v.SetDefault("preflight.check_daemon", true)
	v.SetDefault("preflight.docker_host", "")

	v.SetDefault("launch.skip", false)
	v.SetDefault("launch.superuser", true)

	v.SetDefault("log.level", "info")
}
