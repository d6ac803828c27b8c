// Benchmark tool for testing Kestrel against labeled proctoring session data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/sessions.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled session data (with cheating labels)
//   2. Sends each session to Kestrel for assessment
//   3. Compares Kestrel's verdict (tier >= HIGH) with actual cheat labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Expected CSV columns (header names, case-insensitive):
//   candidate_id, device_id, is_cheat, vm_detected, webdriver, headless,
//   proxy, accuracy, rt_mean, rt_std, paste_events, focus_losses, ip_changes
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledSession represents a row from a labeled session dataset.
type LabeledSession struct {
	CandidateID string
	DeviceID    string
	VMDetected  bool
	Webdriver   bool
	Headless    bool
	Proxy       bool
	Accuracy    float64
	RTMean      float64
	RTStd       float64
	PasteEvents float64
	FocusLosses float64
	IPChanges   float64
	IsCheat     bool
}

// AssessRequest is the Kestrel API request format.
type AssessRequest struct {
	SessionID   string         `json:"sessionId,omitempty"`
	CandidateID string         `json:"candidateId,omitempty"`
	DeviceID    string         `json:"deviceId,omitempty"`
	Record      map[string]any `json:"record"`
}

// AssessResponse is the Kestrel API response format.
type AssessResponse struct {
	AssessmentID string   `json:"assessmentId"`
	Score        float64  `json:"score"`
	Tier         string   `json:"tier"`
	Confidence   float64  `json:"confidence"`
	Factors      []string `json:"factors"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Cheating flagged HIGH/CRITICAL
	FalsePositives int64 // Honest session flagged
	TrueNegatives  int64 // Honest session passed
	FalseNegatives int64 // Cheating missed

	TotalProcessed int64
	TotalCheat     int64
	TotalHonest    int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled sessions CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum sessions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	cheatOnly := flag.Bool("cheat-only", false, "Only test cheating sessions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for honest sessions (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each session result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/sessions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Labeled Session Detection          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Cheat Only:  %v\n", *cheatOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read labeled session data
	fmt.Printf("\nReading session data from %s...\n", *csvPath)
	sessions, err := readSessionCSV(*csvPath, *limit, *cheatOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d sessions\n", len(sessions))

	// Count cheat vs honest
	cheatCount := 0
	for _, s := range sessions {
		if s.IsCheat {
			cheatCount++
		}
	}
	fmt.Printf("  - Cheating: %d (%.2f%%)\n", cheatCount, 100*float64(cheatCount)/float64(len(sessions)))
	fmt.Printf("  - Honest:   %d (%.2f%%)\n", len(sessions)-cheatCount, 100*float64(len(sessions)-cheatCount)/float64(len(sessions)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(sessions, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readSessionCSV(path string, limit int, cheatOnly bool, sampleRate float64) ([]LabeledSession, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	get := func(record []string, col string) string {
		if i, ok := colIndex[col]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}
	getF := func(record []string, col string) float64 {
		v, _ := strconv.ParseFloat(get(record, col), 64)
		return v
	}
	getB := func(record []string, col string) bool {
		v := get(record, col)
		return v == "1" || strings.EqualFold(v, "true")
	}

	var sessions []LabeledSession
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isCheat := getB(record, "is_cheat")

		// Apply filters
		if cheatOnly && !isCheat {
			continue
		}

		// Sample honest sessions
		if !isCheat && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		sessions = append(sessions, LabeledSession{
			CandidateID: get(record, "candidate_id"),
			DeviceID:    get(record, "device_id"),
			VMDetected:  getB(record, "vm_detected"),
			Webdriver:   getB(record, "webdriver"),
			Headless:    getB(record, "headless"),
			Proxy:       getB(record, "proxy"),
			Accuracy:    getF(record, "accuracy"),
			RTMean:      getF(record, "rt_mean"),
			RTStd:       getF(record, "rt_std"),
			PasteEvents: getF(record, "paste_events"),
			FocusLosses: getF(record, "focus_losses"),
			IPChanges:   getF(record, "ip_changes"),
			IsCheat:     isCheat,
		})

		if limit > 0 && len(sessions) >= limit {
			break
		}
	}

	return sessions, nil
}

func runBenchmark(sessions []LabeledSession, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledSession, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for s := range work {
				start := time.Now()
				result, err := assessSession(client, baseURL, tenantID, s)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", s.CandidateID, err)
					}
					continue
				}

				// Track actual labels
				if s.IsCheat {
					atomic.AddInt64(&metrics.TotalCheat, 1)
				} else {
					atomic.AddInt64(&metrics.TotalHonest, 1)
				}

				// Calculate confusion matrix
				predicted := result.Tier == "HIGH" || result.Tier == "CRITICAL"
				actual := s.IsCheat

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					name := s.CandidateID
					if len(name) > 10 {
						name = name[:10]
					}
					fmt.Printf("%s %-10s | VM: %-5v | Acc: %.2f | Cheat: %-5v | Kestrel: %-8s (%.2f)\n",
						status,
						name,
						s.VMDetected,
						s.Accuracy,
						s.IsCheat,
						result.Tier,
						result.Score,
					)
				}
			}
		}()
	}

	// Send work
	for _, s := range sessions {
		work <- s
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func assessSession(client *http.Client, baseURL, tenantID string, s LabeledSession) (*AssessResponse, error) {
	// Synthesize a timing sequence around the labeled mean and spread so the
	// behavior extractor sees a realistic series.
	responseTimes := make([]float64, 10)
	for i := range responseTimes {
		offset := s.RTStd
		if i%2 == 0 {
			offset = -s.RTStd
		}
		rt := s.RTMean + offset
		if rt < 0.5 {
			rt = 0.5
		}
		responseTimes[i] = rt
	}

	req := AssessRequest{
		CandidateID: s.CandidateID,
		DeviceID:    s.DeviceID,
		Record: map[string]any{
			"vm_indicators": map[string]any{
				"vm_detected": s.VMDetected,
			},
			"automation": map[string]any{
				"webdriver": s.Webdriver,
				"headless":  s.Headless,
			},
			"network": map[string]any{
				"proxy":      s.Proxy,
				"ip_changes": s.IPChanges,
			},
			"behavior": map[string]any{
				"accuracy":       s.Accuracy,
				"response_times": responseTimes,
				"paste_events":   s.PasteEvents,
				"focus_losses":   s.FocusLosses,
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AssessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Cheating:   %d\n", m.TotalCheat)
	fmt.Printf("   Total Honest:     %d\n", m.TotalHonest)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   FLAGGED      PASSED")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  C  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           H  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were actual cheating)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of cheating, how much did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalCheat > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalCheat) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalCheat) * 100
		fmt.Printf("   Cheating Detected: %d / %d (%.2f%%)\n", m.TruePositives, m.TotalCheat, detectionRate)
		fmt.Printf("   Cheating Missed:   %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalCheat, missRate)
	}
	if m.TotalHonest > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalHonest) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalHonest, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		sps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f sessions/sec\n", sps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most cheating")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some cheating")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant cheating being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most cheating is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false flags")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false flags")
	}

	fmt.Println()
}
