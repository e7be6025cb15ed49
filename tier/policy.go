package tier

import (
	"fmt"
	"time"
)

// Policy holds the thresholds the scheduler applies on every cycle.
type Policy struct {
	// HotTTL is how long a hot collection may sit idle before it is
	// demoted to warm.
	HotTTL time.Duration

	// WarmTTL is how long a warm collection may sit idle before it is
	// demoted to cold.
	WarmTTL time.Duration

	// PromotionThreshold is the number of accesses within one access
	// window that promotes a warm collection back to hot.
	PromotionThreshold uint64

	// AccessWindow bounds the period over which accesses are counted.
	AccessWindow time.Duration

	// SchedulerInterval is the pause between scheduler cycles.
	SchedulerInterval time.Duration
}

// DefaultPolicy returns the default thresholds: six idle hours to leave
// memory, seven idle days to leave disk, ten accesses inside an hour to
// come back.
func DefaultPolicy() Policy {
	return Policy{
		HotTTL:             6 * time.Hour,
		WarmTTL:            7 * 24 * time.Hour,
		PromotionThreshold: 10,
		AccessWindow:       time.Hour,
		SchedulerInterval:  5 * time.Minute,
	}
}

// Validate rejects thresholds that would make the state machine thrash or
// stall.
func (p Policy) Validate() error {
	if p.HotTTL <= 0 {
		return fmt.Errorf("hot ttl must be positive, got %v", p.HotTTL)
	}
	if p.WarmTTL <= 0 {
		return fmt.Errorf("warm ttl must be positive, got %v", p.WarmTTL)
	}
	if p.PromotionThreshold == 0 {
		return fmt.Errorf("promotion threshold must be positive")
	}
	if p.AccessWindow <= 0 {
		return fmt.Errorf("access window must be positive, got %v", p.AccessWindow)
	}
	if p.SchedulerInterval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %v", p.SchedulerInterval)
	}
	return nil
}

// ShouldDemote reports whether a collection at the given tier has been idle
// past its TTL. Pinned collections never demote.
func (p Policy) ShouldDemote(s State, now time.Time) (Tier, bool) {
	if s.Pinned {
		return 0, false
	}
	idle := now.Sub(s.LastAccessedAt)
	switch s.Tier {
	case TierHot:
		if idle > p.HotTTL {
			return TierWarm, true
		}
	case TierWarm:
		if idle > p.WarmTTL {
			return TierCold, true
		}
	}
	return 0, false
}

// ShouldPromote reports whether a warm collection has crossed the access
// threshold within the current window.
func (p Policy) ShouldPromote(s State, now time.Time) bool {
	if s.Tier != TierWarm {
		return false
	}
	if now.Sub(s.AccessWindowStart) > p.AccessWindow {
		return false
	}
	return s.AccessCount >= p.PromotionThreshold
}
