package cache

import (
	"fmt"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/config"
)

// FromConfig builds a cache sized and timed by the cache.* keys.
func FromConfig[V any]() *Cache[V] {
	size := config.GetInt(config.CACHE_SIZE, 256)
	exp := time.Duration(config.GetInt(config.CACHE_ITEM_EXPIRATION, 3600)) * time.Second
	cleanup := time.Duration(config.GetInt(config.CACHE_CLEANUP, 60)) * time.Second
	return New[V](exp, cleanup, size)
}

// Key identifies an estimation: the instance digest, the method and a
// rendering of the options that change the result.
func Key(method, digest string, options any) string {
	return fmt.Sprintf("%s/%s/%v", method, digest, options)
}
