package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type transition struct {
	id       string
	from, to circuitbreaker.State
}

var testConfig = circuitbreaker.Config{
	FailureThreshold: 3,
	Window:           time.Minute,
	Cooldown:         10 * time.Second,
	MaxCooldown:      35 * time.Second,
}

var _ = Describe("CircuitBreaker", func() {
	var (
		cb          *circuitbreaker.CircuitBreaker
		clk         *clock
		mu          sync.Mutex
		transitions []transition
	)

	trip := func() {
		for i := 0; i < testConfig.FailureThreshold; i++ {
			cb.RecordFailure()
		}
	}

	BeforeEach(func() {
		clk = &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		transitions = nil
		cb = circuitbreaker.NewCircuitBreaker("gpt", testConfig,
			circuitbreaker.WithClock(clk.Now),
			circuitbreaker.WithTransitionFunc(func(id string, from, to circuitbreaker.State) {
				mu.Lock()
				defer mu.Unlock()
				transitions = append(transitions, transition{id, from, to})
			}))
	})

	Describe("NewCircuitBreaker", func() {
		It("should create a circuit breaker in closed state", func() {
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.BackendID()).To(Equal("gpt"))
		})

		It("should fill zero config fields with defaults", func() {
			cb := circuitbreaker.NewCircuitBreaker("x", circuitbreaker.Config{})
			for i := 0; i < 4; i++ {
				cb.RecordFailure()
			}
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(cb.Snapshot().Cooldown).To(Equal(30 * time.Second))
		})
	})

	Context("when in CLOSED state", func() {
		It("should allow requests", func() {
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should remain closed after failures below threshold", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should transition to OPEN after reaching failure threshold", func() {
			trip()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(transitions).To(ConsistOf(transition{"gpt", circuitbreaker.StateClosed, circuitbreaker.StateOpen}))
		})

		It("should only count consecutive failures", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordSuccess()
			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should restart the count when failures fall outside the window", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			clk.Advance(2 * time.Minute)
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Snapshot().ConsecutiveFailures).To(Equal(1))
		})
	})

	Context("when in OPEN state", func() {
		BeforeEach(trip)

		It("should block requests until the cooldown elapses", func() {
			Expect(cb.Allow()).To(BeFalse())
			clk.Advance(9 * time.Second)
			Expect(cb.Allow()).To(BeFalse())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should report the next retry time", func() {
			snap := cb.Snapshot()
			Expect(snap.NextRetry).To(Equal(clk.Now().Add(10 * time.Second)))
			Expect(snap.ConsecutiveFailures).To(Equal(3))
		})

		It("should transition to HALF_OPEN after the cooldown", func() {
			clk.Advance(10 * time.Second)
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should ignore late outcomes", func() {
			cb.RecordSuccess()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(cb.Snapshot().Cooldown).To(Equal(10 * time.Second))
		})
	})

	Context("when in HALF_OPEN state", func() {
		BeforeEach(func() {
			trip()
			clk.Advance(10 * time.Second)
		})

		It("should admit exactly one probe", func() {
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.Allow()).To(BeFalse())
			Expect(cb.Allow()).To(BeFalse())
		})

		It("should admit one probe among concurrent callers", func() {
			var granted sync.WaitGroup
			var count int
			var countMu sync.Mutex
			for i := 0; i < 50; i++ {
				granted.Add(1)
				go func() {
					defer granted.Done()
					if cb.Allow() {
						countMu.Lock()
						count++
						countMu.Unlock()
					}
				}()
			}
			granted.Wait()
			Expect(count).To(Equal(1))
		})

		It("should transition to CLOSED on a successful probe", func() {
			Expect(cb.Allow()).To(BeTrue())
			cb.RecordSuccess()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Snapshot().Cooldown).To(Equal(10 * time.Second))
			Expect(transitions).To(HaveLen(3))
			Expect(transitions[2]).To(Equal(transition{"gpt", circuitbreaker.StateHalfOpen, circuitbreaker.StateClosed}))
		})

		It("should reopen with a doubled cooldown on a failed probe", func() {
			Expect(cb.Allow()).To(BeTrue())
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(cb.Snapshot().Cooldown).To(Equal(20 * time.Second))

			clk.Advance(19 * time.Second)
			Expect(cb.Allow()).To(BeFalse())
			clk.Advance(time.Second)
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should cap the cooldown", func() {
			for i := 0; i < 5; i++ {
				Expect(cb.Allow()).To(BeTrue())
				cb.RecordFailure()
				clk.Advance(cb.Snapshot().Cooldown)
			}
			Expect(cb.Snapshot().Cooldown).To(Equal(35 * time.Second))
		})

		It("should hand the probe to another caller after Release", func() {
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.Allow()).To(BeFalse())
			cb.Release()
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		})
	})

	Describe("Reset", func() {
		It("should close an open breaker", func() {
			trip()
			cb.Reset()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})
	})

	Describe("State.String", func() {
		It("should return correct string representation", func() {
			Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
			Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
			Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF_OPEN"))
			Expect(circuitbreaker.State(42).String()).To(Equal("UNKNOWN"))
		})
	})
})
