//go:build ignore

// Loadtest fires concurrent generate requests at the orchestrator and
// reports throughput, latency percentiles and how answers were sourced
// (LIVE, CACHE, FALLBACK_STALE, FALLBACK_STATIC) per backend.
//
// Usage:
//
//	go run loadtest.go -url http://localhost:8080/v1/generate -concurrency 20 -requests 2000 -topics 50
//	go run loadtest.go -topics 0 -csv results.csv -out summary.json
//
// -topics bounds the number of distinct fingerprints; 0 makes every request
// unique so nothing is served from cache or coalesced.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

type sample struct {
	idx      int
	source   string
	backend  string
	status   int
	duration time.Duration
	err      error
}

type bucket struct {
	Count     int `json:"count"`
	latencies []time.Duration
}

func (b *bucket) add(d time.Duration) {
	b.Count++
	b.latencies = append(b.latencies, d)
}

func record(m map[string]*bucket, key string, d time.Duration) {
	b, ok := m[key]
	if !ok {
		b = &bucket{}
		m[key] = b
	}
	b.add(d)
}

type summary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min_ms"`
	Avg   float64 `json:"avg_ms"`
	Max   float64 `json:"max_ms"`
	P50   float64 `json:"p50_ms"`
	P90   float64 `json:"p90_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
}

func summarize(latencies []time.Duration) summary {
	if len(latencies) == 0 {
		return summary{}
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	pick := func(p float64) float64 { return ms(sorted[int(float64(len(sorted)-1)*p)]) }

	return summary{
		Count: len(sorted),
		Min:   ms(sorted[0]),
		Avg:   ms(sum / time.Duration(len(sorted))),
		Max:   ms(sorted[len(sorted)-1]),
		P50:   pick(0.50),
		P90:   pick(0.90),
		P95:   pick(0.95),
		P99:   pick(0.99),
	}
}

func main() {
	var (
		url         = flag.String("url", "http://localhost:8080/v1/generate", "generate endpoint")
		concurrency = flag.Int("concurrency", 10, "number of concurrent workers")
		requests    = flag.Int("requests", 100, "total number of requests to send")
		topics      = flag.Int("topics", 20, "distinct topics to cycle through, 0 for all unique")
		capability  = flag.String("capability", "dialogue", "capability to request")
		class       = flag.String("class", "conversation", "content class to request")
		deadline    = flag.Duration("deadline", 0, "per-request deadline sent to the gateway, 0 for the server default")
		timeout     = flag.Duration("timeout", 30*time.Second, "client timeout")
		outJSON     = flag.String("out", "", "write JSON summary to this file")
		outCSV      = flag.String("csv", "", "write per-request CSV to this file")
		verbose     = flag.Bool("v", false, "log every request")
	)
	flag.Parse()

	client := &http.Client{Timeout: *timeout}
	samples := make(chan sample, *concurrency)
	jobs := make(chan int)

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < *concurrency; w++ {
		g.Go(func() error {
			for idx := range jobs {
				topic := "load " + strconv.Itoa(idx)
				if *topics > 0 {
					topic = "load " + strconv.Itoa(idx%*topics)
				}
				samples <- send(client, *url, idx, *capability, *class, topic, *deadline)
			}
			return nil
		})
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
		_ = g.Wait()
		close(samples)
	}()

	var csvWriter *csv.Writer
	if *outCSV != "" {
		f, err := os.Create(*outCSV)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create csv file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		csvWriter = csv.NewWriter(f)
		_ = csvWriter.Write([]string{"idx", "source", "backend", "status", "duration_ms"})
	}

	var (
		all       []time.Duration
		bySource  = make(map[string]*bucket)
		byBackend = make(map[string]*bucket)
		statuses  = make(map[int]int)
		failures  int
	)

	for s := range samples {
		all = append(all, s.duration)
		if s.err != nil {
			failures++
			if *verbose {
				fmt.Printf("idx=%d error=%v\n", s.idx, s.err)
			}
			continue
		}
		statuses[s.status]++
		if s.status != http.StatusOK {
			failures++
		}
		record(bySource, s.source, s.duration)
		record(byBackend, s.backend, s.duration)

		if csvWriter != nil {
			_ = csvWriter.Write([]string{
				strconv.Itoa(s.idx), s.source, s.backend, strconv.Itoa(s.status),
				fmt.Sprintf("%.3f", float64(s.duration.Microseconds())/1000),
			})
		}
		if *verbose {
			fmt.Printf("idx=%d source=%s backend=%s status=%d dur=%v\n", s.idx, s.source, s.backend, s.status, s.duration)
		}
	}
	elapsed := time.Since(start)
	if csvWriter != nil {
		csvWriter.Flush()
	}

	throughput := float64(len(all)) / elapsed.Seconds()
	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s\n", *url)
	fmt.Printf("Requests: %d  Concurrency: %d  Topics: %d\n", *requests, *concurrency, *topics)
	fmt.Printf("Failures: %d  Duration: %v  Throughput: %.2f req/s\n", failures, elapsed, throughput)

	fmt.Println("\nStatus codes:")
	codes := make([]int, 0, len(statuses))
	for c := range statuses {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	for _, c := range codes {
		fmt.Printf("  %d -> %d\n", c, statuses[c])
	}

	printBuckets := func(title string, m map[string]*bucket) map[string]summary {
		fmt.Printf("\n%s:\n", title)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		out := make(map[string]summary, len(m))
		for _, k := range keys {
			s := summarize(m[k].latencies)
			out[k] = s
			fmt.Printf("  %-16s n=%-6d p50=%.1fms p95=%.1fms p99=%.1fms max=%.1fms\n", k, s.Count, s.P50, s.P95, s.P99, s.Max)
		}
		return out
	}
	sourceSummary := printBuckets("Sources", bySource)
	backendSummary := printBuckets("Backends", byBackend)

	overall := summarize(all)
	fmt.Printf("\nOverall: n=%d min=%.1fms avg=%.1fms p50=%.1fms p90=%.1fms p99=%.1fms max=%.1fms\n",
		overall.Count, overall.Min, overall.Avg, overall.P50, overall.P90, overall.P99, overall.Max)
	fmt.Printf("\nGOMAXPROCS=%d  NumGoroutine=%d\n", runtime.GOMAXPROCS(0), runtime.NumGoroutine())

	if *outJSON != "" {
		report := map[string]any{
			"target":         *url,
			"requests":       *requests,
			"concurrency":    *concurrency,
			"topics":         *topics,
			"failures":       failures,
			"duration_ms":    elapsed.Milliseconds(),
			"throughput_rps": throughput,
			"overall":        overall,
			"sources":        sourceSummary,
			"backends":       backendSummary,
		}
		f, err := os.Create(*outJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if failures > 0 {
		os.Exit(2)
	}
}

func send(client *http.Client, url string, idx int, capability, class, topic string, deadline time.Duration) sample {
	body := map[string]any{
		"capability":    capability,
		"content_class": class,
		"topic":         topic,
		"locale":        "en",
		"payload":       map[string]string{"prompt": topic},
	}
	if deadline > 0 {
		body["deadline_ms"] = deadline.Milliseconds()
	}
	raw, _ := json.Marshal(body)

	start := time.Now()
	resp, err := client.Post(url, "application/json", strings.NewReader(string(raw)))
	s := sample{idx: idx, duration: time.Since(start), err: err}
	if err != nil {
		return s
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	s.duration = time.Since(start)
	s.status = resp.StatusCode
	s.source = resp.Header.Get("X-Source")
	s.backend = resp.Header.Get("X-Backend-Server")
	if s.source == "" {
		s.source = "(none)"
	}
	if s.backend == "" {
		s.backend = "(none)"
	}
	return s
}
