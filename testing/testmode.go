// Package testing flips the process into test mode when imported, so
// commands started from tests return before touching Postgres or Redis.
package testing

import (
	"os"
	"sync"
)

// EnvVar is the variable app.InTestMode reads.
const EnvVar = "CARRIERNEST_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvVar) == "" {
			_ = os.Setenv(EnvVar, "1")
		}
	})
}
