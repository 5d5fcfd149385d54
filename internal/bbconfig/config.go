// Package bbconfig is the process/CLI configuration singleton, built
// the way the teacher's internal/config package builds its own: a
// package-level *viper.Viper, YAML config type, located by walking up
// from the working directory and falling back to the user's home
// directory, with BUNDLEBASE_-prefixed environment overrides bound
// automatically. This is distinct from internal/objectstore's
// per-URL-prefix configuration (spec §4.1), which is domain logic, not
// ambient process config.
package bbconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper singleton. Safe to call once at process
// startup; a nil v before Initialize makes every Get* a harmless zero
// value rather than a panic, matching the teacher's defensive style.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			path := filepath.Join(dir, ".bundlebase", "config.yaml")
			if _, err := os.Stat(path); err == nil {
				v.SetConfigFile(path)
				configFileSet = true
				break
			}
		}
	}

	if !configFileSet {
		if home, err := os.UserHomeDir(); err == nil {
			path := filepath.Join(home, ".bundlebase", "config.yaml")
			if _, err := os.Stat(path); err == nil {
				v.SetConfigFile(path)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("BUNDLEBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("author", "")
	v.SetDefault("store.region", "")
	v.SetDefault("store.endpoint", "")
	v.SetDefault("store.allow_http", false)
	// Bounded in-flight object-store parallelism (spec §5 "default 16
	// in-flight requests").
	v.SetDefault("concurrency.max_inflight", 16)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading bbconfig file: %w", err)
		}
	}
	return nil
}

// Author returns the configured default commit author, falling back to
// the USER environment variable, then the host name, then "unknown"
// (spec §3 Commit.author "string, captured at commit time").
func Author() string {
	if name := GetString("author"); name != "" {
		return name
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "unknown"
}

// MaxInflight returns the configured bounded object-store parallelism.
func MaxInflight() int {
	if v == nil {
		return 16
	}
	n := v.GetInt("concurrency.max_inflight")
	if n <= 0 {
		return 16
	}
	return n
}

func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// Set overrides a configuration value at runtime (tests, CLI flags).
func Set(key string, value interface{}) {
	if v == nil {
		return
	}
	v.Set(key, value)
}
