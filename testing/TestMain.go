package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("BACKOFFICE_TEST_MODE", "1")
		if os.Getenv("STORAGE_ROOT") == "" {
			_ = os.Setenv("STORAGE_ROOT", os.TempDir())
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
