// Package guard switches the process into test mode when imported, so
// binaries and config loading never reach real infrastructure.
package guard

import "os"

func init() {
	setDefault("ODYSSEY_TEST_MODE", "1")
	setDefault("APP_ENV", "test")
}

func setDefault(key, value string) {
	if _, ok := os.LookupEnv(key); !ok {
		_ = os.Setenv(key, value)
	}
}
