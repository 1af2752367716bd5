package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupEnv returns the first non-empty value among names.
func lookupEnv(names ...string) (string, bool) {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, true
		}
	}
	return "", false
}

func envString(dst *string, names ...string) {
	if v, ok := lookupEnv(names...); ok {
		*dst = v
	}
}

func envInt(dst *int, names ...string) error {
	v, ok := lookupEnv(names...)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", names[0], v)
	}
	*dst = n
	return nil
}

// envDuration accepts Go durations ("90s", "5m") or plain seconds.
func envDuration(dst *time.Duration, names ...string) error {
	v, ok := lookupEnv(names...)
	if !ok {
		return nil
	}
	d, err := parseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", names[0], err)
	}
	*dst = d
	return nil
}

func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}
