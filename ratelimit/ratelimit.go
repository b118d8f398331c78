// Package ratelimit limits wait requests per client ip.
package ratelimit

import (
	"context"
	"net"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/semihalev/zlog/v2"
)

// RateLimit type
type RateLimit struct {
	rate  int
	store *LimiterStore
}

// New return ratelimit allowing perMinute requests for each client, 0 disables it
func New(perMinute int) *RateLimit {
	return &RateLimit{
		rate:  perMinute,
		store: NewLimiterStore(storeSize, perMinute),
	}
}

// Allow reports whether a request from ip may proceed and consumes a token if so.
func (r *RateLimit) Allow(ip net.IP) bool {
	if r.rate == 0 {
		return true
	}

	if ip == nil || ip.IsLoopback() {
		return true
	}

	return r.store.Get(hashIP(ip)).Allow()
}

// Run drops idle limiters until ctx is done.
func (r *RateLimit) Run(ctx context.Context) {
	if r.rate == 0 {
		return
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.store.Cleanup(idleTimeout); n > 0 {
				zlog.Debug("Rate limiters expired", "count", n)
			}
		}
	}
}

func hashIP(ip net.IP) uint64 {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	return xxhash.Sum64(ip)
}

const (
	storeSize       = 256 * 100
	cleanupInterval = time.Minute
	idleTimeout     = 10 * time.Minute
)
