package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("DAYBOOK_TEST_MODE") == "" {
			_ = os.Setenv("DAYBOOK_TEST_MODE", "1")
		}
	})
}
