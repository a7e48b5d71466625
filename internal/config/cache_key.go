package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionAnswersKey returns the hash holding a live session's autosaved answers
func (r *CacheKeyStruct) SessionAnswersKey(sessionID string) string {
	return fmt.Sprintf("session:%s:answers", sessionID)
}

// ExamPayloadKey returns the cache key for an exam's definition
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// ViolationRateKey returns the per-IP counter used to rate limit violation reports
func (r *CacheKeyStruct) ViolationRateKey(ip string) string {
	return fmt.Sprintf("ratelimit:violation:%s", ip)
}

var CacheKey = NewCacheKeyStruct()
