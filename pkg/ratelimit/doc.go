// Package ratelimit paces calls against the remote provider.
//
// Interval enforces the configured minimum delay between consecutive API
// calls; TokenBucket additionally caps requests per period when a
// per-minute ceiling is configured. Both honor context cancellation while
// waiting.
package ratelimit
