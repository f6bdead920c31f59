package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// MonitorChannel returns the Redis PubSub channel carrying live proctor
// events for one experiment.
func (r *CacheKeyStruct) MonitorChannel(experimentID string) string {
	return fmt.Sprintf("viva:%s:monitor", experimentID)
}

var CacheKey = NewCacheKeyStruct()
