// Benchmark tool for load-testing Kestrel with synthetic transactions.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8081 -count 1000
//
// This tool:
//  1. Generates synthetic transactions locally (same generator the server
//     uses for /generate-transaction)
//  2. Sends each one to POST /api/v1/analyze
//  3. Reports throughput, latency, and the anomaly/alert profile
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/synth"
)

// AnalyzeRequest mirrors the server's request format.
type AnalyzeRequest struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Date        string  `json:"date,omitempty"`
}

// AnalyzeResponse carries the fields the benchmark inspects.
type AnalyzeResponse struct {
	Anomalies []domain.Anomaly `json:"anomalies"`
	Results   []struct {
		EntityName string  `json:"entityName"`
		RiskScore  float64 `json:"riskScore"`
	} `json:"results"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64

	TotalEntities  int64
	TotalAnomalies int64
	HighRiskCount  int64 // results scoring at or above the alert threshold

	ProcessingTimeMs int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8081", "Kestrel base URL")
	count := flag.Int("count", 1000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Generator seed")
	threshold := flag.Float64("threshold", 0.7, "Risk score counted as high risk")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	fmt.Println("===============================================")
	fmt.Println("   KESTREL BENCHMARK - Synthetic Load Test")
	fmt.Println("===============================================")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Count:       %d\n", *count)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	generator := synth.NewGenerator(*seed, nil)
	transactions := make([]*domain.Transaction, *count)
	for i := range transactions {
		transactions[i] = generator.Generate()
	}
	fmt.Printf("Generated %d transactions\n", len(transactions))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, *baseURL, *workers, *threshold, *verbose)
	duration := time.Since(startTime)

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

func runBenchmark(transactions []*domain.Transaction, baseURL string, numWorkers int, threshold float64, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan *domain.Transaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := analyzeTransaction(client, baseURL, tx)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.Description, err)
					}
					continue
				}

				atomic.AddInt64(&metrics.TotalEntities, int64(len(result.Results)))
				atomic.AddInt64(&metrics.TotalAnomalies, int64(len(result.Anomalies)))

				highRisk := 0
				for _, r := range result.Results {
					if r.RiskScore >= threshold {
						highRisk++
					}
				}
				atomic.AddInt64(&metrics.HighRiskCount, int64(highRisk))

				if verbose {
					fmt.Printf("%-60s | $%12.2f | entities: %d | anomalies: %d | high-risk: %d\n",
						truncate(tx.Description, 60),
						tx.Amount,
						len(result.Results),
						len(result.Anomalies),
						highRisk,
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyzeTransaction(client *http.Client, baseURL string, tx *domain.Transaction) (*AnalyzeResponse, error) {
	req := AnalyzeRequest{
		Description: tx.Description,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Date:        tx.Date,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n===============================================")
	fmt.Println("              BENCHMARK RESULTS")
	fmt.Println("===============================================")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nANALYSIS PROFILE\n")
	fmt.Printf("   Entities Found:   %d\n", m.TotalEntities)
	fmt.Printf("   Anomalies:        %d\n", m.TotalAnomalies)
	fmt.Printf("   High-Risk Hits:   %d\n", m.HighRiskCount)
	if m.TotalProcessed > 0 {
		fmt.Printf("   Entities/Tx:      %.2f\n", float64(m.TotalEntities)/float64(m.TotalProcessed))
		fmt.Printf("   Anomalies/Tx:     %.2f\n", float64(m.TotalAnomalies)/float64(m.TotalProcessed))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
