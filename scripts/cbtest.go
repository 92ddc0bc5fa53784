//go:build ignore

// cbtest drives a running orchestrator through a backend outage and checks
// that the circuit breaker opens, traffic degrades to other backends or
// fallbacks, and the backend is readmitted after recovery. It expects mock
// backends started with backend.go.
//
// Usage:
//
//	go run cbtest.go -gateway http://localhost:8080 -backend http://localhost:8081 -backend-id claude
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
)

func main() {
	var (
		gateway   = flag.String("gateway", "http://localhost:8080", "orchestrator base URL")
		backend   = flag.String("backend", "http://localhost:8081", "mock backend base URL to break")
		backendID = flag.String("backend-id", "claude", "id of that backend in the gateway config")
		requests  = flag.Int("requests", 20, "requests per phase")
		cooldown  = flag.Duration("cooldown", 30*time.Second, "breaker cooldown configured on the gateway")
	)
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}
	run := time.Now().UnixNano()

	phase("PHASE 1: Normal operation")
	sources := sendBatch(client, *gateway, fmt.Sprintf("warmup-%d", run), *requests)
	printSources(sources)
	if sources["LIVE"] == 0 {
		fail("no live responses, is the gateway running?")
	}
	ok("live traffic verified")

	phase("PHASE 2: Backend outage")
	if err := setMode(client, *backend, "fail"); err != nil {
		fail(err.Error())
	}
	sources = sendBatch(client, *gateway, fmt.Sprintf("outage-%d", run), *requests)
	printSources(sources)
	if sources["ERROR"] > 0 {
		warn("some requests were not answered at all")
	} else {
		ok("every request answered despite the outage")
	}

	state, err := breakerState(client, *gateway, *backendID)
	if err != nil {
		fail(err.Error())
	}
	fmt.Printf("  breaker %s -> %s\n", *backendID, state)
	if state == "OPEN" {
		ok("circuit opened")
	} else {
		warn("circuit not open yet, raise -requests or lower the failure threshold")
	}

	phase("PHASE 3: Recovery")
	if err := setMode(client, *backend, "ok"); err != nil {
		fail(err.Error())
	}
	fmt.Printf("  waiting %s for the cooldown...\n", *cooldown)
	time.Sleep(*cooldown + time.Second)

	sources = sendBatch(client, *gateway, fmt.Sprintf("recovery-%d", run), *requests)
	printSources(sources)
	state, err = breakerState(client, *gateway, *backendID)
	if err != nil {
		fail(err.Error())
	}
	fmt.Printf("  breaker %s -> %s\n", *backendID, state)
	if state == "CLOSED" {
		ok("backend readmitted")
	} else {
		warn("backend still not closed, the probe may have failed")
	}

	stats, err := get(client, *gateway+"/stats")
	if err == nil {
		fmt.Println("\n  Health snapshot:")
		gjson.GetBytes(stats, "health").ForEach(func(id, snap gjson.Result) bool {
			fmt.Printf("    %-12s score=%.2f failure_rate=%.2f samples=%d\n",
				id.String(),
				snap.Get("score").Float(),
				snap.Get("failure_rate").Float(),
				snap.Get("samples").Int())
			return true
		})
	}
}

func sendBatch(client *http.Client, gateway, topicPrefix string, n int) map[string]int {
	sources := make(map[string]int)
	for i := 0; i < n; i++ {
		body := fmt.Sprintf(`{"capability":"dialogue","content_class":"conversation","topic":"%s-%d","locale":"en"}`, topicPrefix, i)
		resp, err := client.Post(gateway+"/v1/generate", "application/json", strings.NewReader(body))
		if err != nil {
			sources["ERROR"]++
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		source := resp.Header.Get("X-Source")
		if resp.StatusCode != http.StatusOK || source == "" {
			sources["ERROR"]++
			continue
		}
		sources[source+" via "+backendOr(resp.Header.Get("X-Backend-Server"))]++
		sources[source]++
	}
	return sources
}

func backendOr(id string) string {
	if id == "" {
		return "-"
	}
	return id
}

func setMode(client *http.Client, backend, mode string) error {
	resp, err := client.Post(backend+"/admin/mode?mode="+mode, "", nil)
	if err != nil {
		return fmt.Errorf("switch backend mode: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("switch backend mode: status %d", resp.StatusCode)
	}
	fmt.Printf("  backend %s switched to %s\n", backend, mode)
	return nil
}

func breakerState(client *http.Client, gateway, id string) (string, error) {
	body, err := get(client, gateway+"/health")
	if err != nil {
		return "", err
	}
	state, found := gjson.GetBytes(body, "breakers").Map()[id]
	if !found {
		return "", fmt.Errorf("backend %q not reported by /health", id)
	}
	return state.String(), nil
}

func get(client *http.Client, url string) ([]byte, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func printSources(sources map[string]int) {
	for k, v := range sources {
		if strings.Contains(k, " via ") {
			fmt.Printf("    %-32s %d\n", k, v)
		}
	}
	if n := sources["ERROR"]; n > 0 {
		fmt.Printf(colorRed+"    %-32s %d\n"+colorReset, "ERROR", n)
	}
}

func phase(title string) {
	fmt.Println()
	fmt.Println(colorBlue + "━━━ " + title + " ━━━" + colorReset)
}

func ok(msg string)   { fmt.Println(colorGreen + "  ✓ " + msg + colorReset) }
func warn(msg string) { fmt.Println(colorYellow + "  ⚠ " + msg + colorReset) }

func fail(msg string) {
	fmt.Println(colorRed + "  ✗ " + msg + colorReset)
	os.Exit(1)
}
