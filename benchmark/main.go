// Package main provides a performance benchmarking tool for the macindex CLI.
// It measures execution times across observation feeds of different lengths
// and command types, running each test multiple times, treating the first
// successful run as cold and averaging the rest as warm, and writes CSV
// output for performance analysis and documentation.
//
// Prerequisites:
// - macindex binary installed and available in PATH
// - Observation feeds in the data directory, one CSV per feed
//
// Usage: go run benchmark/main.go [data-dir]
//
//	data-dir: Directory containing observation CSV files
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// BenchmarkResult holds the result of a benchmark run (no-cache average, cold run and average of warm runs).
type BenchmarkResult struct {
	Feed        string
	Command     string
	NoCacheTime string
	ColdTime    string
	WarmTime    string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	DataDir     string
	Timeout     time.Duration
	Workers     int
	NoCacheRuns int
	CacheRuns   int
	Feeds       []string
	Commands    map[string][]string
}

func main() {
	// Parse command line arguments
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [data-dir]\n", os.Args[0])
		os.Exit(1)
	}
	dataDir := os.Args[1]

	feeds, err := filepath.Glob(filepath.Join(dataDir, "*.csv"))
	if err != nil {
		fmt.Printf("Failed to list feeds: %v\n", err)
		os.Exit(1)
	}
	slices.Sort(feeds)

	config := BenchmarkConfig{
		DataDir:     dataDir,
		Timeout:     10 * time.Minute,
		Workers:     8,
		NoCacheRuns: 3,
		CacheRuns:   4,
		Feeds:       feeds,
		Commands: map[string][]string{
			"score":    {"--bootstrap", "--replicates", "500"},
			"backtest": {"--step-days", "7", "--refit-every", "26"},
			"weights":  {"--validate"},
		},
	}

	if err := checkPrerequisites(config); err != nil {
		fmt.Printf("Prerequisites check failed: %v\n", err)
		os.Exit(1)
	}

	// Clear the cache using macindex cache clear
	fmt.Printf("Clearing cache...\n")
	clearCmd := exec.Command("macindex", "cache", "clear")
	if output, err := clearCmd.CombinedOutput(); err != nil {
		fmt.Printf("Warning: failed to clear cache: %v\nOutput: %s\n", err, string(output))
	} else {
		fmt.Printf("Cache cleared successfully\n")
	}

	results := runBenchmarks(config)

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// checkPrerequisites verifies that the macindex binary and feeds exist
func checkPrerequisites(config BenchmarkConfig) error {
	if _, err := exec.LookPath("macindex"); err != nil {
		return fmt.Errorf("macindex binary not found in PATH")
	}
	if len(config.Feeds) == 0 {
		return fmt.Errorf("no observation CSV files found in %s", config.DataDir)
	}
	return nil
}

// runBenchmarks executes all benchmark tests across configured feeds
func runBenchmarks(config BenchmarkConfig) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d feeds, %v timeout, %d workers, no-cache: %d runs, cache: %d runs\n",
		len(config.Feeds), config.Timeout, config.Workers, config.NoCacheRuns, config.CacheRuns)

	commands := make([]string, 0, len(config.Commands))
	for c := range config.Commands {
		commands = append(commands, c)
	}
	slices.Sort(commands)

	for _, feed := range config.Feeds {
		name := strings.TrimSuffix(filepath.Base(feed), ".csv")
		fmt.Printf("Benchmarking %s\n", name)
		for _, command := range commands {
			results = append(results, runBenchmarkSuite(config, name, feed, command))
		}
	}

	return results
}

// runBenchmarkSuite runs both no-cache and cache benchmarks for a command
func runBenchmarkSuite(config BenchmarkConfig, name, feed, command string) BenchmarkResult {
	fmt.Printf("Running %s on %s\n", command, name)

	// Helper to run a benchmark phase
	runPhase := func(cacheBackend string, numRuns int, phaseName string) (coldTime float64, avgTime string) {
		fmt.Printf("  %s phase (%d runs)\n", phaseName, numRuns)
		cold, times := runBenchmark(config, feed, command, cacheBackend, numRuns)
		if len(times) == 0 {
			avgTime = "TIMEOUT"
		} else {
			var sum float64
			for _, t := range times {
				sum += t
			}
			avgTime = fmt.Sprintf("%.3fs", sum/float64(len(times)))
		}
		return cold, avgTime
	}

	// Phase 1: No-cache runs
	_, noCacheAvg := runPhase("none", config.NoCacheRuns, "No-cache")

	// Phase 2: Cache runs
	coldTime, warmAvg := runPhase("sqlite", config.CacheRuns, "Cache")

	coldTimeStr := "TIMEOUT"
	if coldTime > 0 {
		coldTimeStr = fmt.Sprintf("%.3fs", coldTime)
	}

	fmt.Printf("  No-cache average: %s, Cold time: %s, Warm average: %s\n", noCacheAvg, coldTimeStr, warmAvg)

	return BenchmarkResult{
		Feed:        name,
		Command:     command,
		NoCacheTime: noCacheAvg,
		ColdTime:    coldTimeStr,
		WarmTime:    warmAvg,
	}
}

// runBenchmark executes a macindex command multiple times with specified cache backend and returns cold time and warm times
func runBenchmark(config BenchmarkConfig, feed, command, cacheBackend string, numRuns int) (coldTime float64, warmTimes []float64) {
	args := []string{command,
		"--observations", feed,
		"--cache-backend", cacheBackend,
		"--workers", fmt.Sprint(config.Workers),
		"--output", "json",
		"--output-file", os.DevNull,
	}
	args = append(args, config.Commands[command]...)

	var times []float64
	for run := 1; run <= numRuns; run++ {
		start := time.Now()

		cmd := exec.Command("macindex", args...)

		done := make(chan error, 1)
		go func() {
			_, err := cmd.CombinedOutput()
			done <- err
		}()

		select {
		case err := <-done:
			if err == nil {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			_ = cmd.Process.Kill()
		}
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(os.TempDir(), fmt.Sprintf("macindex_benchmark_%s.csv", timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	if err := writer.Write([]string{"feed", "cmd", "no_cache_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	// Write results
	for _, result := range results {
		if err := writer.Write([]string{result.Feed, result.Command, result.NoCacheTime, result.ColdTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")

	printCommandSummary(results, "backtest", "Backtest:")
	printCommandSummary(results, "score", "Score:")
	printCommandSummary(results, "weights", "Weights:")

	fmt.Printf("Benchmark script completed successfully\n")
}

// printCommandSummary displays results for a specific command type
func printCommandSummary(results []BenchmarkResult, command, title string) {
	fmt.Printf("%s\n", title)
	for _, result := range results {
		if result.Command == command {
			fmt.Printf("  %-16s: No-cache: %s, Cold: %s, Warm: %s\n", result.Feed, result.NoCacheTime, result.ColdTime, result.WarmTime)
		}
	}
}
