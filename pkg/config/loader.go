package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"devagent/pkg/logx"
)

// EnvPrefix prefixes every environment override, e.g. DEVAGENT_GENERATION_MODEL.
const EnvPrefix = "DEVAGENT_"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

var durationType = reflect.TypeOf(time.Duration(0))

// DefaultPath returns the config file location for a project directory.
func DefaultPath(projectDir string) string {
	return filepath.Join(projectDir, ProjectDirName, ConfigFileName)
}

// Load reads the project config from its default location. A missing file
// yields the defaults.
func Load(projectDir string) (*Config, error) {
	return LoadConfig(DefaultPath(projectDir), projectDir)
}

// LoadConfig loads and validates configuration from a YAML file with
// environment variable substitution. A missing file is not an error.
func LoadConfig(configPath, projectDir string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logx.NewLogger("config").Debug("no config at %s, using defaults", configPath)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal([]byte(substituteEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg, projectDir)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// substituteEnv replaces ${VAR} placeholders, leaving unknown ones intact.
func substituteEnv(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func applyEnvOverrides(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	return applyEnvOverridesRecursive(v, v.Type(), EnvPrefix)
}

func applyEnvOverridesRecursive(v reflect.Value, t reflect.Type, prefix string) error {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		tag := fieldType.Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		envKey := strings.ToUpper(prefix + strings.Split(tag, ",")[0])

		if field.Kind() == reflect.Struct {
			if err := applyEnvOverridesRecursive(field, field.Type(), envKey+"_"); err != nil {
				return err
			}
			continue
		}

		if envValue, ok := os.LookupEnv(envKey); ok && envValue != "" {
			if err := setFieldFromEnv(field, envValue); err != nil {
				return fmt.Errorf("invalid value for %s: %w", envKey, err)
			}
		}
	}
	return nil
}

func setFieldFromEnv(field reflect.Value, envValue string) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(envValue)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(envValue, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(envValue, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(envValue)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		parts := strings.Split(envValue, ",")
		out := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = reflect.Append(out, reflect.ValueOf(p))
			}
		}
		field.Set(out)
	case reflect.Pointer:
		elem := reflect.New(field.Type().Elem())
		if err := setFieldFromEnv(elem.Elem(), envValue); err != nil {
			return err
		}
		field.Set(elem)
	}
	return nil
}
