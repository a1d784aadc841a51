package models

import (
	"time"
)

// CacheEntry represents the last known good value stored under a key
type CacheEntry[T any] struct {
	Key          string        `json:"key"`
	Value        T             `json:"value"`
	FetchedAt    time.Time     `json:"fetched_at"`
	TTL          time.Duration `json:"ttl"`
	IsRefreshing bool          `json:"is_refreshing"`
}

// NewCacheEntry creates a new cache entry fetched at the given time
func NewCacheEntry[T any](key string, value T, ttl time.Duration, fetchedAt time.Time) *CacheEntry[T] {
	return &CacheEntry[T]{
		Key:       key,
		Value:     value,
		FetchedAt: fetchedAt,
		TTL:       ttl,
	}
}

// Age returns how old the entry is at now
func (ce *CacheEntry[T]) Age(now time.Time) time.Duration {
	age := now.Sub(ce.FetchedAt)
	if age < 0 {
		return 0
	}
	return age
}

// IsFresh checks if the entry is still within its TTL at now
func (ce *CacheEntry[T]) IsFresh(now time.Time) bool {
	return ce.Age(now) < ce.TTL
}

// RemainingTTL returns the time until the entry goes stale
func (ce *CacheEntry[T]) RemainingTTL(now time.Time) time.Duration {
	remaining := ce.TTL - ce.Age(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
