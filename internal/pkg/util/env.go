// Package util reads process configuration from the environment.
package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"framefarm/internal/pkg/errors"
)

// Env returns the trimmed value of k, or def when it is empty.
func Env(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

// RequireEnv returns the trimmed value of k or a config error naming it.
func RequireEnv(k string) (string, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return "", errors.Configf("%s is required", k).WithField("key", k)
	}
	return v, nil
}

// BoolEnv accepts whatever strconv.ParseBool does. Unset or unparsable
// values give def, as with IntEnv and DurationEnv.
func BoolEnv(k string, def bool) bool {
	return parsedEnv(k, def, strconv.ParseBool)
}

func IntEnv(k string, def int) int {
	return parsedEnv(k, def, strconv.Atoi)
}

// DurationEnv takes time.ParseDuration syntax such as "90s" or "8h".
func DurationEnv(k string, def time.Duration) time.Duration {
	return parsedEnv(k, def, time.ParseDuration)
}

func parsedEnv[T any](k string, def T, parse func(string) (T, error)) T {
	v, err := parse(Env(k, ""))
	if err != nil {
		return def
	}
	return v
}

// CSVEnv reads a comma separated env var, dropping blank items. If nothing
// remains, returns def.
func CSVEnv(k string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return def
	}
	out := make([]string, 0, strings.Count(raw, ",")+1)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
