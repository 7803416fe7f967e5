package server

import (
	"sync"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// LimitReason is the metric label for a rejected socket upgrade.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

type ipEntry struct {
	open     int
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ConnectionLimits guards socket upgrades with an instance-wide cap, a
// per-IP cap and a per-IP token bucket on new connections.
type ConnectionLimits struct {
	clock     clockwork.Clock
	maxTotal  int
	maxPerIP  int
	rate      rate.Limit
	burst     int
	mu        sync.Mutex
	total     int
	ips       map[string]*ipEntry
	nextSweep time.Time
}

func NewConnectionLimits(clock clockwork.Clock, maxTotal, maxPerIP int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		clock:     clock,
		maxTotal:  maxTotal,
		maxPerIP:  maxPerIP,
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		ips:       make(map[string]*ipEntry),
		nextSweep: clock.Now().Add(limiterSweepInterval),
	}
}

// Acquire reserves a slot for ip. The rate check runs first so a flood of
// attempts spends tokens even while the caps are full.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(limiterSweepInterval)
	}

	entry, ok := l.ips[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.ips[ip] = entry
	}
	entry.lastSeen = now

	var reason LimitReason
	switch {
	case !entry.limiter.AllowN(now, 1):
		reason = LimitReasonRate
	case l.total >= l.maxTotal:
		reason = LimitReasonGlobal
	case entry.open >= l.maxPerIP:
		reason = LimitReasonPerIP
	}
	if reason != "" {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		return false, reason
	}

	entry.open++
	l.total++
	l.reportLocked()
	return true, ""
}

func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.ips[ip]
	if !ok || entry.open == 0 {
		return
	}
	entry.open--
	entry.lastSeen = l.clock.Now()
	l.total--
	l.reportLocked()
}

// Current returns the number of held slots.
func (l *ConnectionLimits) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *ConnectionLimits) CountFor(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.ips[ip]; ok {
		return entry.open
	}
	return 0
}

// sweep drops idle IPs with no open connections. Caller holds mu.
func (l *ConnectionLimits) sweep(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for ip, entry := range l.ips {
		if entry.open == 0 && entry.lastSeen.Before(cutoff) {
			delete(l.ips, ip)
		}
	}
}

func (l *ConnectionLimits) reportLocked() {
	unique := 0
	for _, entry := range l.ips {
		if entry.open > 0 {
			unique++
		}
	}
	metrics.WebSocketUniqueIPs.Set(float64(unique))
	if l.maxTotal > 0 {
		metrics.WebSocketConnectionCapacity.Set(float64(l.total) / float64(l.maxTotal) * 100)
	}
}
