// Package cache provides a redis-backed response cache for the public
// catalog GET endpoints. A nil client degrades to a pass-through, so the
// application runs fine without redis.
package cache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.buf.Write(b)
	return cw.ResponseWriter.Write(b)
}

// cacheKey hashes the concrete request path, not the route template, so
// /products/:id yields one entry per product.
func cacheKey(c echo.Context) string {
	sum := sha1.Sum([]byte(c.Request().URL.Path + "?" + c.Request().URL.RawQuery))
	return fmt.Sprintf("catalog:%x", sum[:])
}

// Response caches successful JSON GET responses under a route+query key.
func Response(rdb *redis.Client, ttl time.Duration) echo.MiddlewareFunc {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rdb == nil || c.Request().Method != http.MethodGet {
				return next(c)
			}

			key := cacheKey(c)
			ctx := c.Request().Context()
			if cached, err := rdb.Get(ctx, key).Bytes(); err == nil {
				return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, cached)
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw

			if err := next(c); err != nil {
				return err
			}
			if cw.status == http.StatusOK {
				// Store failures only cost a cache miss next time.
				rdb.Set(ctx, key, cw.buf.Bytes(), ttl)
			}
			return nil
		}
	}
}

// Invalidate drops every cached catalog response. Called after catalog
// mutations; harmless without redis.
func Invalidate(rdb *redis.Client) {
	if rdb == nil {
		return
	}
	ctx := context.Background()
	iter := rdb.Scan(ctx, 0, "catalog:*", 100).Iterator()
	for iter.Next(ctx) {
		rdb.Del(ctx, iter.Val())
	}
}
