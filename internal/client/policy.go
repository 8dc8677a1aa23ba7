package client

import "time"

// DefaultRateWindow is the minimum spacing between two sends.
const DefaultRateWindow = time.Second

// Verdict is the outcome of a rate check.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictWarn
	VerdictDisconnect
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictWarn:
		return "warn"
	case VerdictDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// RatePolicy allows one message per window, measured from the last message
// actually sent. The first early send is a warning, every later one a
// disconnect. Not safe for concurrent use; the Client serializes checks.
type RatePolicy struct {
	window     time.Duration
	violations int
}

func NewRatePolicy(window time.Duration) *RatePolicy {
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RatePolicy{window: window}
}

// Check judges a send at now given the time of the last sent message.
// hasLast is false when nothing was sent yet, which resets the counter.
func (p *RatePolicy) Check(lastSent time.Time, hasLast bool, now time.Time) Verdict {
	if !hasLast {
		p.violations = 0
		return VerdictAllow
	}
	if !now.Before(lastSent.Add(p.window)) {
		return VerdictAllow
	}
	p.violations++
	if p.violations == 1 {
		return VerdictWarn
	}
	return VerdictDisconnect
}

// Violations returns the number of early sends counted so far.
func (p *RatePolicy) Violations() int {
	return p.violations
}

// Window returns the enforced spacing.
func (p *RatePolicy) Window() time.Duration {
	return p.window
}
