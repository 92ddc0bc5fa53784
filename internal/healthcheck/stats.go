package healthcheck

import (
	"math"
	"slices"
	"sync"
	"time"
)

const ewmaAlpha = 0.2

type sample struct {
	at      time.Time
	success bool
	latency time.Duration
}

// Stats is one backend's sliding window of call outcomes, bounded both
// by count and by age.
type Stats struct {
	mutex sync.Mutex

	ring  []sample
	head  int // index of the oldest sample
	count int

	window  time.Duration
	ewma    time.Duration
	hasEWMA bool
}

func newStats(size int, window time.Duration) *Stats {
	return &Stats{
		ring:   make([]sample, size),
		window: window,
	}
}

func (s *Stats) record(at time.Time, success bool, latency time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tail := (s.head + s.count) % len(s.ring)
	s.ring[tail] = sample{at: at, success: success, latency: latency}
	if s.count < len(s.ring) {
		s.count++
	} else {
		s.head = (s.head + 1) % len(s.ring)
	}

	// ewma = (1 - α) * ewma + α * latest
	if !s.hasEWMA {
		s.ewma = latency
		s.hasEWMA = true
	} else {
		s.ewma = time.Duration((1-ewmaAlpha)*float64(s.ewma) + ewmaAlpha*float64(latency))
	}
}

// Snapshot summarises the samples still inside the time window at now.
type Snapshot struct {
	Samples     int           `json:"samples"`
	Failures    int           `json:"failures"`
	FailureRate float64       `json:"failure_rate"`
	P95         time.Duration `json:"p95"`
	EWMA        time.Duration `json:"ewma"`
	Score       float64       `json:"score"`
}

func (s *Stats) snapshot(now time.Time, reference time.Duration) Snapshot {
	s.mutex.Lock()
	cutoff := now.Add(-s.window)
	latencies := make([]time.Duration, 0, s.count)
	failures := 0
	for i := 0; i < s.count; i++ {
		smp := s.ring[(s.head+i)%len(s.ring)]
		if smp.at.Before(cutoff) {
			continue
		}
		latencies = append(latencies, smp.latency)
		if !smp.success {
			failures++
		}
	}
	ewma := s.ewma
	s.mutex.Unlock()

	snap := Snapshot{Samples: len(latencies), Failures: failures, Score: 1}
	if snap.Samples == 0 {
		return snap
	}

	slices.Sort(latencies)
	snap.P95 = latencies[int(math.Ceil(0.95*float64(len(latencies))))-1]
	snap.EWMA = ewma
	snap.FailureRate = float64(failures) / float64(snap.Samples)
	snap.Score = score(snap.FailureRate, snap.P95, snap.EWMA, reference)
	return snap
}

// score maps failure rate and latency into (0, 1]. Latency is the mean of
// p95 and EWMA, discounted against the reference: a backend answering in
// exactly reference time loses half its score.
func score(failureRate float64, p95, ewma, reference time.Duration) float64 {
	latency := (float64(p95) + float64(ewma)) / 2
	ref := float64(reference)
	return (1 - failureRate) * ref / (ref + latency)
}
