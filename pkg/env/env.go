// Package env reads process environment variables with fallbacks. It covers
// the handful of settings needed before config parsing runs, such as the log
// format consulted during logger construction.
package env

import "os"

// Get returns the named variable, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
