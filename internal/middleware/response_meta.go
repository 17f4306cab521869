package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// WithResponseMeta initialises per-request response metadata. Handlers read
// it back with ExtractMeta when building the envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, map[string]interface{}{"started_at": time.Now()})
		c.Next()
	}
}

// ExtractMeta returns the metadata for the current response with the
// processing time filled in, or nil when WithResponseMeta did not run.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	value, exists := c.Get(responseMetaKey)
	if !exists {
		return nil
	}
	stored, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	meta := make(map[string]interface{}, len(stored))
	for k, v := range stored {
		if k == "started_at" {
			if started, ok := v.(time.Time); ok {
				meta["processing_time_ms"] = time.Since(started).Milliseconds()
			}
			continue
		}
		meta[k] = v
	}
	return meta
}

// SetMeta records a metadata value for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if stored, exists := c.Get(responseMetaKey); exists {
		if typed, ok := stored.(map[string]interface{}); ok {
			typed[key] = value
			return
		}
	}
	c.Set(responseMetaKey, map[string]interface{}{key: value})
}
