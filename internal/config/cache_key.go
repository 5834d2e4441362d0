package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SchoolSummaryKey returns the cache key for a school's compliance summary.
func (r *CacheKeyStruct) SchoolSummaryKey(schoolID uuid.UUID) string {
	return fmt.Sprintf("school:%s:compliance_summary", schoolID)
}

// SchoolSummaryPattern matches every cached school summary.
func (r *CacheKeyStruct) SchoolSummaryPattern() string {
	return "school:*:compliance_summary"
}

// DerivationLockKey guards against two derivation passes running at once.
func (r *CacheKeyStruct) DerivationLockKey() string {
	return "derivation:lock"
}

// DerivationProgressChannel is the Redis PubSub channel for derivation events.
func (r *CacheKeyStruct) DerivationProgressChannel() string {
	return "derivation:progress"
}

var CacheKey = NewCacheKeyStruct()
