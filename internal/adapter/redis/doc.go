// Package redis holds the Redis-backed pieces: the outbound PUBLISH sink,
// the broadcast lease that keeps one instance per broadcast, and the
// command metrics hook.
package redis
