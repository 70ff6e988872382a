package auth

import "time"

// ThrottlePolicy is the pure brute-force lockout policy. The attempt counts
// come from the ledger; the policy only compares them to thresholds. The two
// axes are independent: rotating source addresses is still caught by the
// account counter, spraying many accounts from one address by the address
// counter.
type ThrottlePolicy struct {
	AccountThreshold int
	AccountWindow    time.Duration
	SourceThreshold  int
	SourceWindow     time.Duration
}

// DefaultThrottlePolicy mirrors the production configuration: five failures
// per account in 15 minutes, twenty failures per address in 10 minutes.
func DefaultThrottlePolicy() ThrottlePolicy {
	return ThrottlePolicy{
		AccountThreshold: 5,
		AccountWindow:    15 * time.Minute,
		SourceThreshold:  20,
		SourceWindow:     10 * time.Minute,
	}
}

// AllowAccount reports whether a login for the account may proceed given its
// failed-attempt count inside the account window.
func (p ThrottlePolicy) AllowAccount(failed int) bool {
	return failed < p.AccountThreshold
}

// AllowSource reports whether a login from the source address may proceed.
func (p ThrottlePolicy) AllowSource(failed int) bool {
	return failed < p.SourceThreshold
}

// AccountSince returns the start of the account lookback window.
func (p ThrottlePolicy) AccountSince(now time.Time) time.Time {
	return now.Add(-p.AccountWindow)
}

// SourceSince returns the start of the address lookback window.
func (p ThrottlePolicy) SourceSince(now time.Time) time.Time {
	return now.Add(-p.SourceWindow)
}
