package healthcheck_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/ai-orchestrator/internal/healthcheck"
	"github.com/angeloszaimis/ai-orchestrator/pkg/logger"
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

var _ = Describe("Monitor", func() {
	var (
		clk      *clock
		breakers *circuitbreaker.Registry
		monitor  *healthcheck.Monitor
		outMu    sync.Mutex
		outcomes []string
	)

	BeforeEach(func() {
		clk = &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		outcomes = nil

		var err error
		breakers, err = circuitbreaker.NewRegistry(circuitbreaker.Config{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		}, []string{"fast", "slow"}, circuitbreaker.WithClock(clk.Now))
		Expect(err).NotTo(HaveOccurred())

		monitor = healthcheck.NewMonitor(healthcheck.Config{
			WindowSize:       10,
			Window:           time.Minute,
			LatencyReference: time.Second,
		}, breakers,
			healthcheck.WithClock(clk.Now),
			healthcheck.WithLogger(logger.Discard()),
			healthcheck.WithOutcomeFunc(func(id string, success bool, latency time.Duration) {
				outMu.Lock()
				defer outMu.Unlock()
				outcomes = append(outcomes, fmt.Sprintf("%s/%t/%s", id, success, latency))
			}))
	})

	Describe("Score", func() {
		It("should be optimistic for backends without samples", func() {
			Expect(monitor.Score("fast")).To(Equal(1.0))
		})

		It("should be zero for unknown backends", func() {
			Expect(monitor.Score("ghost")).To(BeZero())
			_, ok := monitor.Snapshot("ghost")
			Expect(ok).To(BeFalse())
		})

		It("should prefer lower latency", func() {
			for i := 0; i < 5; i++ {
				monitor.RecordOutcome("fast", true, 50*time.Millisecond)
				monitor.RecordOutcome("slow", true, 2*time.Second)
			}
			Expect(monitor.Score("fast")).To(BeNumerically(">", monitor.Score("slow")))
		})

		It("should prefer lower failure rate", func() {
			for i := 0; i < 4; i++ {
				monitor.RecordOutcome("fast", true, 100*time.Millisecond)
				monitor.RecordOutcome("slow", i%2 == 0, 100*time.Millisecond)
			}
			Expect(monitor.Score("fast")).To(BeNumerically(">", monitor.Score("slow")))
		})

		It("should not change when read", func() {
			monitor.RecordOutcome("fast", true, 100*time.Millisecond)
			first := monitor.Score("fast")
			Expect(monitor.Score("fast")).To(Equal(first))
		})
	})

	Describe("Snapshot", func() {
		It("should compute failure rate and p95 over the window", func() {
			for i := 1; i <= 10; i++ {
				monitor.RecordOutcome("fast", i > 2, time.Duration(i)*10*time.Millisecond)
			}
			snap, ok := monitor.Snapshot("fast")
			Expect(ok).To(BeTrue())
			Expect(snap.Samples).To(Equal(10))
			Expect(snap.Failures).To(Equal(2))
			Expect(snap.FailureRate).To(BeNumerically("~", 0.2))
			Expect(snap.P95).To(Equal(100 * time.Millisecond))
			Expect(snap.EWMA).To(BeNumerically(">", 0))
			Expect(snap.Score).To(BeNumerically(">", 0))
			Expect(snap.Score).To(BeNumerically("<", 1))
		})

		It("should keep only the most recent samples", func() {
			for i := 0; i < 10; i++ {
				monitor.RecordOutcome("fast", false, time.Millisecond)
			}
			breakers.Reset()
			for i := 0; i < 10; i++ {
				monitor.RecordOutcome("fast", true, time.Millisecond)
			}
			snap, _ := monitor.Snapshot("fast")
			Expect(snap.Samples).To(Equal(10))
			Expect(snap.Failures).To(BeZero())
		})

		It("should forget samples older than the window", func() {
			for i := 0; i < 3; i++ {
				monitor.RecordOutcome("fast", false, time.Second)
			}
			clk.Advance(61 * time.Second)
			monitor.RecordOutcome("fast", true, 10*time.Millisecond)

			snap, _ := monitor.Snapshot("fast")
			Expect(snap.Samples).To(Equal(1))
			Expect(snap.FailureRate).To(BeZero())
		})

		It("should recover an optimistic score once history ages out", func() {
			monitor.RecordOutcome("slow", false, 5*time.Second)
			Expect(monitor.Score("slow")).To(BeZero())
			clk.Advance(2 * time.Minute)
			Expect(monitor.Score("slow")).To(Equal(1.0))
		})

		It("should list every backend", func() {
			Expect(monitor.Snapshots()).To(HaveKey("fast"))
			Expect(monitor.Snapshots()).To(HaveKey("slow"))
		})
	})

	Describe("RecordOutcome", func() {
		It("should open the breaker after consecutive failures", func() {
			for i := 0; i < 4; i++ {
				monitor.RecordOutcome("fast", false, time.Second)
			}
			Expect(breakers.Get("fast").State()).To(Equal(circuitbreaker.StateClosed))
			monitor.RecordOutcome("fast", false, time.Second)
			Expect(breakers.Get("fast").State()).To(Equal(circuitbreaker.StateOpen))
			Expect(breakers.Get("fast").Allow()).To(BeFalse())
			Expect(breakers.Get("slow").State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should close a half-open breaker on success", func() {
			for i := 0; i < 5; i++ {
				monitor.RecordOutcome("fast", false, time.Second)
			}
			clk.Advance(30 * time.Second)
			Expect(breakers.Get("fast").Allow()).To(BeTrue())
			monitor.RecordOutcome("fast", true, 10*time.Millisecond)
			Expect(breakers.Get("fast").State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should notify the outcome observer", func() {
			monitor.RecordOutcome("fast", true, 20*time.Millisecond)
			monitor.RecordOutcome("ghost", true, 20*time.Millisecond)
			Expect(outcomes).To(Equal([]string{"fast/true/20ms"}))
		})

		It("should be safe under concurrent callers", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					monitor.RecordOutcome("slow", i%3 != 0, time.Duration(i)*time.Millisecond)
				}(i)
				go func() {
					defer wg.Done()
					monitor.Score("slow")
				}()
			}
			wg.Wait()
			snap, _ := monitor.Snapshot("slow")
			Expect(snap.Samples).To(Equal(10))
		})
	})

	Describe("Run", func() {
		It("should stop when context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				monitor.Run(ctx, 10*time.Millisecond)
			}()

			time.Sleep(30 * time.Millisecond)
			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})
