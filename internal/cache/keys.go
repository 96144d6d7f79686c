package cache

import (
	"fmt"
	"time"
)

// ThrottleKey names the fixed one-minute window for a principal bucket.
// bucket is already namespaced by principal kind.
func ThrottleKey(bucket string, at time.Time) string {
	return fmt.Sprintf("throttle:%s:%d", bucket, at.Unix()/60)
}
