package conf

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by playrec.
const EnvPrefix = "PLAYREC"

// envBinding ties an environment variable to a config key with optional validation.
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

// getEnvBindings lists the variables that get checked before they reach the config.
// Other keys are still picked up through AutomaticEnv, unvalidated until ValidateSettings.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"engine.backend", "PLAYREC_ENGINE_BACKEND", validateEnvBackend},
		{"engine.sample_rate", "PLAYREC_ENGINE_SAMPLE_RATE", validateEnvPositiveInt},
		{"engine.buffer_size", "PLAYREC_ENGINE_BUFFER_SIZE", validateEnvPositiveInt},
		{"engine.lock_memory", "PLAYREC_ENGINE_LOCK_MEMORY", validateEnvBool},
		{"stream.capacity_frames", "PLAYREC_STREAM_CAPACITY_FRAMES", validateEnvPositiveInt},
		{"stream.loop", "PLAYREC_STREAM_LOOP", validateEnvBool},
		{"stream.sample_format", "PLAYREC_STREAM_SAMPLE_FORMAT", validateEnvSampleFormat},
		{"metrics.enabled", "PLAYREC_METRICS_ENABLED", validateEnvBool},
		{"telemetry.dsn", "PLAYREC_TELEMETRY_DSN", nil},
	}
}

// bindEnvVars binds the validated environment variables. Invalid values are collected
// and returned together.
func bindEnvVars() error {
	var problems []string

	for _, b := range getEnvBindings() {
		if err := viper.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", b.EnvVar, err))
			continue
		}
		if b.Validate == nil {
			continue
		}
		if value, ok := os.LookupEnv(b.EnvVar); ok {
			if err := b.Validate(value); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", b.EnvVar, value, err))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// configureEnvironmentVariables enables PLAYREC_* overrides for every key.
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return bindEnvVars()
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value: %s", value)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer value: %s", value)
	}
	if n <= 0 {
		return fmt.Errorf("value must be positive, got %d", n)
	}
	return nil
}

func validateEnvBackend(value string) error {
	if !slices.Contains(ValidBackends, strings.ToLower(strings.TrimSpace(value))) {
		return fmt.Errorf("unknown backend %q, expected one of %s", value, strings.Join(ValidBackends, ", "))
	}
	return nil
}

func validateEnvSampleFormat(value string) error {
	if !slices.Contains(ValidSampleFormats, strings.ToLower(strings.TrimSpace(value))) {
		return fmt.Errorf("unknown sample format %q, expected one of %s", value, strings.Join(ValidSampleFormats, ", "))
	}
	return nil
}
