package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the default prefix of environment overrides
const EnvPrefix = "MONGOSPLIT"

// envKeys lists every SourceConfig key that may be overridden from the
// environment, in viper's dotted form.
var envKeys = []string{
	"name",
	"uri",
	"database",
	"collection",
	"filter",
	"sort",
	"projection",
	"partitions",
	"batch_size",
	"timeouts.connection",
	"timeouts.count",
	"timeouts.request",
	"observability.log_level",
	"observability.enable_metrics",
	"observability.metrics_addr",
	"observability.enable_tracing",
}

// Only ${VAR} is expanded; a bare $ is left alone so query operators survive.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load loads a configuration from a YAML file
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv overlays environment variables onto target. MONGOSPLIT_URI sets
// uri, MONGOSPLIT_TIMEOUTS_COUNT sets timeouts.count and so on. Keys that
// are not set in the environment keep their current value.
func LoadEnv(prefix string, target *SourceConfig) error {
	v := viper.New()
	v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrides := viper.New()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
		if v.IsSet(key) {
			overrides.Set(key, v.Get(key))
		}
	}

	if err := overrides.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// LoadSource reads a SourceConfig from path (if non-empty), applies
// environment overrides and validates the result.
func LoadSource(path string) (*SourceConfig, error) {
	cfg := NewSourceConfig("")
	if path != "" {
		if err := Load(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := LoadEnv(EnvPrefix, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}
