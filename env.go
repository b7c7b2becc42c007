package shipproxy

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix marks the environment keys that belong to shipproxy.
const EnvPrefix = "SHIPPROXY_"

// LoadEnv loads SHIPPROXY_* environment variables from a .env file.
// Only keys prefixed with "SHIPPROXY_" are loaded; existing env vars are not overwritten.
func LoadEnv(name string) {
	data, err := os.ReadFile(name)
	if err != nil {
		return
	}
	for _, ln := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(ln)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			log.Printf("env: malformed line: %s", line)
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := strings.TrimSpace(line[i+1:])
		v = strings.Trim(v, "\"'")
		if !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		if os.Getenv(k) == "" {
			_ = os.Setenv(k, v)
		}
	}
}

// EnvString returns the trimmed value of key, or def when unset.
func EnvString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// EnvInt returns key parsed as an int, or def when unset or invalid.
func EnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("env: %s=%q is not a number, using %d", key, v, def)
		return def
	}
	return n
}

// EnvDuration returns key parsed as a time.Duration, or def when unset or invalid.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("env: %s=%q is not a duration, using %s", key, v, def)
		return def
	}
	return d
}

// EnvBool reports whether key is set to a true value.
func EnvBool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return b
}
