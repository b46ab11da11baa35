// Package usage tracks consumption of the hosted services the marketplace
// runs on against their free-tier quotas.
package usage

import (
	"errors"
	"fmt"
	"time"
)

const (
	MetricVercel     = "vercel"
	MetricSupabase   = "supabase"
	MetricRedis      = "redis"
	MetricCloudinary = "cloudinary"

	// CriticalPercentage is the threshold above which a metric is reported as critical.
	CriticalPercentage = 80.0
)

// Metrics lists metric names in reporting order.
var Metrics = []string{MetricVercel, MetricSupabase, MetricRedis, MetricCloudinary}

var ErrInvalidLimit = errors.New("usage limit must be positive")

// Limits are the quota ceilings counters are measured against.
type Limits struct {
	VercelInvocations float64
	SupabaseMAU       float64
	RedisMemory       float64
	CloudinaryCredits float64
}

// DefaultLimits is 90% of each provider's free-tier ceiling.
var DefaultLimits = Limits{
	VercelInvocations: 900000,
	SupabaseMAU:       9000,
	RedisMemory:       240.0,
	CloudinaryCredits: 22,
}

// Validate rejects zero or negative limits so percentages are always defined.
func (l Limits) Validate() error {
	for name, v := range l.byMetric() {
		if v <= 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidLimit, name, v)
		}
	}
	return nil
}

func (l Limits) byMetric() map[string]float64 {
	return map[string]float64{
		MetricVercel:     l.VercelInvocations,
		MetricSupabase:   l.SupabaseMAU,
		MetricRedis:      l.RedisMemory,
		MetricCloudinary: l.CloudinaryCredits,
	}
}

// Counters are the raw consumption figures of a snapshot.
type Counters struct {
	VercelInvocations float64 `json:"vercel_invocations"`
	SupabaseMAU       float64 `json:"supabase_mau"`
	RedisMemory       float64 `json:"redis_memory"`
	CloudinaryCredits float64 `json:"cloudinary_credits"`
}

func (c Counters) byMetric() map[string]float64 {
	return map[string]float64{
		MetricVercel:     c.VercelInvocations,
		MetricSupabase:   c.SupabaseMAU,
		MetricRedis:      c.RedisMemory,
		MetricCloudinary: c.CloudinaryCredits,
	}
}

// Snapshot is a read-only point-in-time reading. Construct it with NewSnapshot.
type Snapshot struct {
	counters  Counters
	limits    Limits
	timestamp time.Time
}

func NewSnapshot(counters Counters, limits Limits, at time.Time) (Snapshot, error) {
	if err := limits.Validate(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{counters: counters, limits: limits, timestamp: at}, nil
}

func (s Snapshot) Counters() Counters   { return s.counters }
func (s Snapshot) Limits() Limits       { return s.limits }
func (s Snapshot) Timestamp() time.Time { return s.timestamp }

// IsWithinLimits reports whether every counter is strictly below its limit.
func (s Snapshot) IsWithinLimits() bool {
	limits := s.limits.byMetric()
	for name, v := range s.counters.byMetric() {
		if v >= limits[name] {
			return false
		}
	}
	return true
}

func (s Snapshot) UsagePercentage() map[string]float64 {
	limits := s.limits.byMetric()
	out := make(map[string]float64, len(Metrics))
	for name, v := range s.counters.byMetric() {
		out[name] = v / limits[name] * 100
	}
	return out
}

// CriticalServices returns, in Metrics order, the metrics above CriticalPercentage.
func (s Snapshot) CriticalServices() []string {
	pct := s.UsagePercentage()
	critical := []string{}
	for _, name := range Metrics {
		if pct[name] > CriticalPercentage {
			critical = append(critical, name)
		}
	}
	return critical
}

// Report is the JSON view served to administrators.
type Report struct {
	Counters
	Timestamp        time.Time          `json:"timestamp"`
	WithinLimits     bool               `json:"within_limits"`
	UsagePercentage  map[string]float64 `json:"usage_percentage"`
	CriticalServices []string           `json:"critical_services"`
}

func (s Snapshot) Report() Report {
	return Report{
		Counters:         s.counters,
		Timestamp:        s.timestamp,
		WithinLimits:     s.IsWithinLimits(),
		UsagePercentage:  s.UsagePercentage(),
		CriticalServices: s.CriticalServices(),
	}
}
