package startup

import (
	"context"
	"os"
	"time"

	"github.com/portalchat/internal/blob"
	"github.com/portalchat/internal/logger"
)

// ConnectMinioWithRetry connects to the object store with exponential
// backoff, giving up (and exiting) after maxWait.
func ConnectMinioWithRetry(cfg blob.Config, maxWait time.Duration) *blob.Store {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := blob.New(ctx, cfg)
		cancel()
		if err != nil {
			if time.Now().After(deadline) {
				logger.Errorf("minio (gave up after %v): %v", maxWait, err)
				os.Exit(1)
			}
			logger.Errorf("minio connect failed, retry in %v: %v", backoff, err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		return store
	}
}
