package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"github.com/angeloszaimis/ai-orchestrator/internal/cache"
	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/ai-orchestrator/internal/metrics"
	"github.com/angeloszaimis/ai-orchestrator/internal/request"
	"github.com/angeloszaimis/ai-orchestrator/pkg/logger"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, logger.Discard())
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Observer events", func() {
		It("should aggregate outcomes", func() {
			collector.Start(ctx)
			collector.OnOutcome("gpt", false, 100*time.Millisecond)

			Eventually(func() int64 {
				return collector.Snapshot().Backends["gpt"].Failures
			}).Should(Equal(int64(1)))
		})

		It("should aggregate cache events", func() {
			collector.Start(ctx)
			collector.OnCacheEvent(cache.EventMiss, cache.TierDisk)

			Eventually(func() int64 {
				return collector.Snapshot().Cache[cache.TierDisk].Misses
			}).Should(Equal(int64(1)))
		})

		It("should aggregate circuit transitions", func() {
			collector.Start(ctx)
			collector.OnCircuitTransition("gpt", circuitbreaker.StateClosed, circuitbreaker.StateOpen)

			Eventually(func() circuitbreaker.State {
				return collector.Snapshot().Backends["gpt"].State
			}).Should(Equal(circuitbreaker.StateOpen))
		})

		It("should leave transition logging to the breaker owner", func() {
			out := gbytes.NewBuffer()
			collector = metrics.NewCollector(100, slog.New(slog.NewTextHandler(out, nil)))
			collector.Start(ctx)
			collector.OnCircuitTransition("gpt", circuitbreaker.StateClosed, circuitbreaker.StateOpen)

			Eventually(func() circuitbreaker.State {
				return collector.Snapshot().Backends["gpt"].State
			}).Should(Equal(circuitbreaker.StateOpen))

			// Events are processed in order; once this one lands the transition is done.
			collector.OnResponse(request.SourceLive, time.Millisecond)
			Eventually(func() int64 {
				return collector.Snapshot().Sources[request.SourceLive]
			}).Should(Equal(int64(1)))
			Expect(string(out.Contents())).NotTo(ContainSubstring("backend=gpt"))
		})

		It("should aggregate responses", func() {
			collector.Start(ctx)
			collector.OnResponse(request.SourceFallbackStale, time.Millisecond)

			Eventually(func() int64 {
				return collector.Snapshot().Sources[request.SourceFallbackStale]
			}).Should(Equal(int64(1)))
		})
	})

	Describe("Emit", func() {
		It("should drop events instead of blocking when the buffer is full", func() {
			small := metrics.NewCollector(2, logger.Discard())
			for i := 0; i < 5; i++ {
				small.OnOutcome("gpt", true, time.Millisecond)
			}
			Expect(small.Snapshot().DroppedEvents).To(Equal(int64(3)))
		})
	})

	It("should drain events on context cancellation", func() {
		for i := 0; i < 5; i++ {
			collector.OnOutcome("gpt", true, time.Millisecond)
		}
		collector.Start(ctx)
		cancel()

		Eventually(func() int64 {
			return collector.Snapshot().Backends["gpt"].Attempts
		}).Should(Equal(int64(5)))
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.OnResponse(request.SourceLive, time.Millisecond)
			Eventually(func() int64 { return collector.Snapshot().TotalRequests }).Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			collector.Handler()(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var body map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body["total_requests"]).To(BeNumerically("==", 1))
			Expect(body["sources"]).To(HaveKeyWithValue("LIVE", BeNumerically("==", 1)))
		})
	})
})
