package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SOJOURN_TEST_MODE") == "" {
			_ = os.Setenv("SOJOURN_TEST_MODE", "1")
		}
	})
}
