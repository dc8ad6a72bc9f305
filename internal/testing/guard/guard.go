package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CUSTODY_TEST_MODE") == "" {
			_ = os.Setenv("CUSTODY_TEST_MODE", "1")
		}
	})
}
