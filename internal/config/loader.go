package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	// ProjectConfigFile is the config file looked up in the working directory
	ProjectConfigFile = "recordstore.yaml"

	EnvDriver    = "RECORDSTORE_DB_DRIVER"
	EnvDSN       = "RECORDSTORE_DB_DSN"
	EnvLogLevel  = "RECORDSTORE_LOG_LEVEL"
	EnvLogFormat = "RECORDSTORE_LOG_FORMAT"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger logrus.FieldLogger

	// Lookup reads environment variables. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)

	// DotEnv is loaded into the process environment before overrides are read.
	// Empty means ".env"; a missing file is ignored.
	DotEnv string
}

// NewLoader creates a new configuration loader
func NewLoader(logger logrus.FieldLogger) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loader{logger: logger, Lookup: os.LookupEnv}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. path, or recordstore.yaml in the working directory when path is empty
// 3. .env file
// 4. RECORDSTORE_* environment variables
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = ProjectConfigFile
	}
	fileConfig, err := LoadFromFile(path)
	switch {
	case err == nil:
		l.logger.WithField("path", path).Debug("Loaded config file")
		config.Merge(fileConfig)
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, err
	default:
		l.logger.Debug("No project config found")
	}

	dotenv := l.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err == nil {
		l.logger.WithField("path", dotenv).Debug("Loaded env file")
	} else if !errors.Is(err, fs.ErrNotExist) {
		l.logger.WithField("path", dotenv).WithError(err).Warn("Failed to load env file")
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (l *Loader) applyEnv(c *Config) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	overrides := []struct {
		key    string
		target *string
	}{
		{EnvDriver, &c.Database.Driver},
		{EnvDSN, &c.Database.DSN},
		{EnvLogLevel, &c.Log.Level},
		{EnvLogFormat, &c.Log.Format},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.target = v
		}
	}
}
