package circuitbreaker_test

import (
	"encoding/json"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	BeforeEach(func() {
		var err error
		registry, err = circuitbreaker.NewRegistry(testConfig, []string{"gpt", "claude", "local"})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewRegistry", func() {
		It("should create one closed breaker per backend", func() {
			Expect(registry.IDs()).To(Equal([]string{"claude", "gpt", "local"}))
			for _, id := range registry.IDs() {
				Expect(registry.Get(id).State()).To(Equal(circuitbreaker.StateClosed))
			}
		})

		It("should reject duplicate ids", func() {
			_, err := circuitbreaker.NewRegistry(testConfig, []string{"gpt", "gpt"})
			Expect(err).To(MatchError(ContainSubstring("duplicate")))
		})
	})

	Describe("Get", func() {
		It("should return the same breaker for the same id", func() {
			Expect(registry.Get("gpt")).To(BeIdenticalTo(registry.Get("gpt")))
		})

		It("should return different breakers for different ids", func() {
			Expect(registry.Get("gpt")).NotTo(BeIdenticalTo(registry.Get("claude")))
		})

		It("should return nil for unregistered ids", func() {
			Expect(registry.Get("unknown")).To(BeNil())
		})
	})

	Describe("Concurrent access", func() {
		It("should handle concurrent operations on same breaker", func() {
			const goroutines = 50
			cb := registry.Get("gpt")

			var wg sync.WaitGroup
			wg.Add(goroutines * 2)
			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					if cb.Allow() {
						cb.RecordFailure()
					}
				}()
				go func() {
					defer wg.Done()
					cb.RecordSuccess()
				}()
			}
			wg.Wait()

			Expect(cb.State()).To(BeElementOf(
				circuitbreaker.StateClosed,
				circuitbreaker.StateOpen,
				circuitbreaker.StateHalfOpen,
			))
		})
	})

	Describe("Stats", func() {
		It("should return state of all breakers", func() {
			for i := 0; i < testConfig.FailureThreshold; i++ {
				registry.Get("claude").RecordFailure()
			}

			stats := registry.Stats()
			Expect(stats).To(HaveLen(3))
			Expect(stats["gpt"]).To(Equal(circuitbreaker.StateClosed))
			Expect(stats["claude"]).To(Equal(circuitbreaker.StateOpen))

			raw, err := json.Marshal(stats)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring(`"claude":"OPEN"`))
		})
	})

	Describe("Reset", func() {
		It("should close every breaker", func() {
			for i := 0; i < testConfig.FailureThreshold; i++ {
				registry.Get("gpt").RecordFailure()
			}
			registry.Reset()
			Expect(registry.Stats()).To(HaveEach(circuitbreaker.StateClosed))
		})
	})
})
