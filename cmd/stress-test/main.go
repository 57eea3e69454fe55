// Command stress-test drives a mixed upload and read workload against the
// GPX track server and reports throughput, latency percentiles and failures.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// StressTestConfig holds configuration for the stress test
type StressTestConfig struct {
	ServerHost       string        // Server host (default: localhost)
	ServerPort       string        // Server port (default: 8082)
	APIKey           string        // Sent as X-API-Key when set
	Duration         time.Duration // Test duration (default: 30s)
	Concurrency      int           // Concurrent workers (default: 50)
	RPS              float64       // Request rate cap, 0 for unlimited
	UploadShare      float64       // Share of requests that upload a track
	LaunchServer     bool          // Whether to launch the server binary
	ServerBinary     string        // Path to server binary (default: ./server)
	UseHTTPS         bool          // Whether to use HTTPS instead of HTTP
	TLSSkipVerify    bool          // Whether to skip TLS certificate verification
	ExportPath       string        // JSON report path, empty to skip
	FailureThreshold float64       // Failure rate (%) that stops the test early
}

// StressTest manages one run
type StressTest struct {
	config    *StressTestConfig
	metrics   *Metrics
	workload  *Workload
	serverCmd *exec.Cmd
	baseURL   string
}

func main() {
	config := parseFlags()
	displayConfig(config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewStressTest(config).Run(ctx); err != nil {
		log.Fatalf("Stress test failed: %v", err)
	}
}

func parseFlags() *StressTestConfig {
	config := &StressTestConfig{}

	flag.StringVar(&config.ServerHost, "host", "localhost", "Server host")
	flag.StringVar(&config.ServerPort, "port", "8082", "Server port")
	flag.StringVar(&config.APIKey, "api-key", os.Getenv("API_KEY"), "API key")
	flag.DurationVar(&config.Duration, "duration", 30*time.Second, "Test duration")
	flag.IntVar(&config.Concurrency, "concurrency", 50, "Concurrent workers")
	flag.Float64Var(&config.RPS, "rps", 0, "Request rate cap (0 = unlimited)")
	flag.Float64Var(&config.UploadShare, "upload-share", DefaultMix.Upload, "Share of requests that upload a GPX file")
	flag.BoolVar(&config.LaunchServer, "launch-server", true, "Launch server independently")
	flag.StringVar(&config.ServerBinary, "server-binary", "./server", "Path to server binary")
	flag.BoolVar(&config.UseHTTPS, "https", false, "Use HTTPS instead of HTTP")
	flag.BoolVar(&config.TLSSkipVerify, "tls-skip-verify", false, "Skip TLS certificate verification")
	flag.StringVar(&config.ExportPath, "export", "stress-test-report.json", "Write the JSON report here (empty to skip)")
	flag.Float64Var(&config.FailureThreshold, "failure-threshold", 50.0, "Failure rate threshold (%) for early termination")

	flag.Parse()
	return config
}

func displayConfig(config *StressTestConfig) {
	fmt.Println("🚀 GPX Track Server - Stress Test")
	fmt.Println(strings.Repeat("=", 50))
	protocol := "http"
	if config.UseHTTPS {
		protocol = "https"
	}
	fmt.Printf("Target Server: %s://%s:%s\n", protocol, config.ServerHost, config.ServerPort)
	fmt.Printf("Test Duration: %v\n", config.Duration)
	fmt.Printf("Concurrency: %d\n", config.Concurrency)
	if config.RPS > 0 {
		fmt.Printf("Rate Cap: %.0f req/s\n", config.RPS)
	}
	fmt.Printf("Upload Share: %.0f%%\n", config.UploadShare*100)
	fmt.Printf("Launch Server: %t\n", config.LaunchServer)
	fmt.Printf("Failure Threshold: %.1f%%\n", config.FailureThreshold)
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()
}

// NewStressTest creates a stress test with its HTTP client and workload
func NewStressTest(config *StressTestConfig) *StressTest {
	transport := &http.Transport{
		MaxIdleConns:        config.Concurrency,
		MaxIdleConnsPerHost: config.Concurrency,
		IdleConnTimeout:     90 * time.Second,
	}
	protocol := "http"
	if config.UseHTTPS {
		protocol = "https"
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: config.TLSSkipVerify}
	}
	baseURL := fmt.Sprintf("%s://%s:%s", protocol, config.ServerHost, config.ServerPort)

	mix := DefaultMix
	mix.Upload = config.UploadShare

	return &StressTest{
		config:  config,
		metrics: NewMetrics(),
		workload: &Workload{
			client:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
			baseURL: baseURL,
			apiKey:  config.APIKey,
			mix:     mix,
		},
		baseURL: baseURL,
	}
}

// Run executes the complete stress test
func (st *StressTest) Run(ctx context.Context) error {
	if st.config.LaunchServer {
		if err := st.launchServer(ctx); err != nil {
			return fmt.Errorf("failed to launch server: %w", err)
		}
		defer st.shutdownServer()
	}

	if err := st.waitForServer(ctx); err != nil {
		return fmt.Errorf("server not ready: %w", err)
	}

	fmt.Println("🚀 Starting stress test...")
	start := time.Now()
	if err := st.execute(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)

	summary := st.metrics.Summarize(elapsed)
	printReport(summary)
	if st.config.ExportPath != "" {
		if err := exportReport(st.config.ExportPath, summary); err != nil {
			return err
		}
		fmt.Printf("📁 Report written to %s\n", st.config.ExportPath)
	}
	return nil
}

// execute runs the workers until the duration elapses, the test is
// interrupted or the failure rate crosses the threshold.
func (st *StressTest) execute(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, st.config.Duration)
	defer cancel()

	limit := rate.Inf
	if st.config.RPS > 0 {
		limit = rate.Limit(st.config.RPS)
	}
	limiter := rate.NewLimiter(limit, max(1, st.config.Concurrency))

	var requestCounter atomic.Int64
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		st.reportProgress(ctx, cancel)
		return nil
	})

	for w := range st.config.Concurrency {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
			for {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				id := requestCounter.Add(1)
				op := st.workload.mix.Pick(rng.Float64())
				begin := time.Now()
				status, err := st.workload.Do(ctx, id, op)
				if ctx.Err() != nil {
					// cut off by the deadline, not a server failure
					return nil
				}
				st.metrics.Record(id, string(op), time.Since(begin), status, err)
			}
		})
	}
	return g.Wait()
}

func (st *StressTest) reportProgress(ctx context.Context, stop context.CancelFunc) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s := st.metrics.Summarize(time.Since(st.metrics.started))
		failureRate := st.metrics.FailureRate()
		fmt.Printf("📊 %s requests | %.1f req/s | p95 %d ms | failures %.1f%%\n",
			humanize.Comma(s.TotalRequests), s.RequestsPerSec, s.Percentiles["p95"], failureRate)

		if s.TotalRequests >= 100 && failureRate > st.config.FailureThreshold {
			fmt.Printf("🛑 Failure rate %.1f%% exceeds threshold, stopping early\n", failureRate)
			stop()
			return
		}
	}
}

// launchServer starts the server binary on the configured port
func (st *StressTest) launchServer(ctx context.Context) error {
	fmt.Printf("🚀 Launching server from: %s\n", st.config.ServerBinary)

	if _, err := os.Stat(st.config.ServerBinary); os.IsNotExist(err) {
		fmt.Println("📦 Server binary not found, attempting to build...")
		buildCmd := exec.CommandContext(ctx, "go", "build", "-o", st.config.ServerBinary, "./cmd/server")
		if output, err := buildCmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to build server: %w\nOutput: %s", err, output)
		}
	}

	dataDir, err := os.MkdirTemp("", "gpx-stress-*")
	if err != nil {
		return err
	}

	env := append(os.Environ(),
		"ENABLE_AUTH=false",
		"LOG_LEVEL=warn",
		"LOG_PRESET=high-performance",
		"DATA_DIR="+dataDir,
		"BACKUP_DIR="+dataDir+"/backups",
		"HOST="+st.config.ServerHost,
		"PORT="+st.config.ServerPort,
		// measure the server, not the per-client limiter
		"ECHO_RATE_LIMIT=0",
	)

	st.serverCmd = exec.Command(st.config.ServerBinary)
	st.serverCmd.Env = env
	st.serverCmd.Stdout = os.Stdout
	st.serverCmd.Stderr = os.Stderr
	if err := st.serverCmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	fmt.Printf("✅ Server launched with PID: %d (data in %s)\n", st.serverCmd.Process.Pid, dataDir)
	return nil
}

// shutdownServer sends SIGINT and waits for the graceful shutdown
func (st *StressTest) shutdownServer() {
	if st.serverCmd == nil || st.serverCmd.Process == nil {
		return
	}
	fmt.Println("🛑 Shutting down server...")
	if err := st.serverCmd.Process.Signal(syscall.SIGINT); err != nil {
		log.Printf("Failed to send interrupt signal: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- st.serverCmd.Wait() }()

	select {
	case <-done:
		fmt.Println("✅ Server shut down gracefully")
	case <-time.After(30 * time.Second):
		fmt.Println("⚠️ Server shutdown timeout, forcing kill...")
		_ = st.serverCmd.Process.Kill()
	}
}

func (st *StressTest) waitForServer(ctx context.Context) error {
	fmt.Println("⏳ Waiting for server to be ready...")
	for attempt := 0; attempt < 30; attempt++ {
		status, err := st.workload.Do(ctx, 0, OpHealth)
		if err == nil && status == http.StatusOK {
			fmt.Println("✅ Server is ready!")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("no healthy answer from %s", st.baseURL)
}

func printReport(s Summary) {
	fmt.Println()
	fmt.Println("📋 FINAL REPORT")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Duration:        %s\n", s.Duration)
	fmt.Printf("Total Requests:  %s\n", humanize.Comma(s.TotalRequests))
	fmt.Printf("Succeeded:       %s\n", humanize.Comma(s.Succeeded))
	fmt.Printf("Failed:          %s\n", humanize.Comma(s.Failed))
	fmt.Printf("Throughput:      %.1f req/s\n", s.RequestsPerSec)
	fmt.Printf("Latency:         min %d ms, max %d ms\n", s.MinMs, s.MaxMs)

	fmt.Println("\n📈 Response Time Percentiles:")
	for _, p := range []string{"p50", "p75", "p90", "p95", "p99"} {
		fmt.Printf("   %s: %d ms\n", strings.ToUpper(p), s.Percentiles[p])
	}

	fmt.Println("\n🔀 Per Operation:")
	names := make([]string, 0, len(s.Endpoints))
	for name := range s.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ep := s.Endpoints[name]
		avg := int64(0)
		if ep.Requests > 0 {
			avg = ep.TotalMs / ep.Requests
		}
		fmt.Printf("   %-24s %8s requests  %6s failed  avg %d ms\n",
			name, humanize.Comma(ep.Requests), humanize.Comma(ep.Failed), avg)
	}

	if len(s.FailuresByType) > 0 {
		fmt.Println("\n❌ Failures by type:")
		for kind, n := range s.FailuresByType {
			fmt.Printf("   %-20s %s\n", kind, humanize.Comma(n))
		}
	}
}

func exportReport(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
