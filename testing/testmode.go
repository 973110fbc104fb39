// Package testing is blank-imported by test binaries. It flips the process
// into test mode before any package init reads the environment.
package testing

import "os"

var testEnv = map[string]string{
	"ODYSSEY_TEST_MODE": "1",
	"LEDGER_STRICT":     "true",
}

func init() {
	for key, value := range testEnv {
		if _, set := os.LookupEnv(key); !set || key == "ODYSSEY_TEST_MODE" {
			_ = os.Setenv(key, value)
		}
	}
}
