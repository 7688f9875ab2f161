package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CASHDESK_TEST_MODE") == "" {
			_ = os.Setenv("CASHDESK_TEST_MODE", "1")
		}
	})
}
