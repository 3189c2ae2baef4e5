package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override profile fields.
const (
	EnvUsername      = "HOSTPREP_USERNAME"
	EnvLogFile       = "HOSTPREP_LOG_FILE"
	EnvLogLevel      = "HOSTPREP_LOG_LEVEL"
	EnvAgeIdentity   = "HOSTPREP_AGE_IDENTITY"
	EnvAgePassphrase = "HOSTPREP_AGE_PASSPHRASE"
)

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables already set are not overwritten.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays HOSTPREP_* variables onto the profile and expands
// ${VAR} references in string vars. getenv is usually os.Getenv.
func (p *Profile) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&p.Username, EnvUsername)
	set(&p.LogFile, EnvLogFile)
	set(&p.LogLevel, EnvLogLevel)
	set(&p.Age.Identity, EnvAgeIdentity)
	set(&p.Age.Passphrase, EnvAgePassphrase)

	for k, v := range p.Vars {
		p.Vars[k] = expand(v, getenv)
	}
}

func expand(v any, getenv func(string) string) any {
	switch x := v.(type) {
	case string:
		return os.Expand(x, getenv)
	case []any:
		for i := range x {
			x[i] = expand(x[i], getenv)
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = expand(x[k], getenv)
		}
		return x
	default:
		return v
	}
}
