package credentials

import "time"

// LockoutPolicy decides when repeated failures lock an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// NewLockoutPolicy reads the policy from cfg.
func NewLockoutPolicy(cfg Config) LockoutPolicy {
	cfg = normalizeConfig(cfg)
	return LockoutPolicy{
		Threshold: cfg.GetLockoutThreshold(),
		Duration:  cfg.GetLockoutDuration(),
	}
}

// Enabled reports whether failures can lock accounts at all.
func (p LockoutPolicy) Enabled() bool {
	return p.Threshold > 0
}

// IsLockedOut reports whether the account is locked at now.
func (p LockoutPolicy) IsLockedOut(account *Account, now time.Time) bool {
	if account == nil || account.LockoutEnd == nil {
		return false
	}
	return now.Before(*account.LockoutEnd)
}

// WindowLapsed reports whether a previous lockout window has ended while the
// counter still sits at or above the threshold. Such accounts start a fresh
// window.
func (p LockoutPolicy) WindowLapsed(account *Account, now time.Time) bool {
	if account == nil || !p.Enabled() {
		return false
	}
	if account.AccessFailedCount < p.Threshold {
		return false
	}
	return !p.IsLockedOut(account, now)
}

// Reached reports whether count failures trigger a lockout.
func (p LockoutPolicy) Reached(count int) bool {
	return p.Enabled() && count >= p.Threshold
}

// LockoutEnd returns the end of a lockout starting at now.
func (p LockoutPolicy) LockoutEnd(now time.Time) time.Time {
	return now.Add(p.Duration).UTC()
}
