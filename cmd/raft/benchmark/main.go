package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raftpeer/internal/raft/config"
	"raftpeer/internal/raft/controller"
)

func main() {
	// Parse command-line flags
	clusterSize := flag.Int("cluster-size", 3, "Number of nodes in the cluster")
	numCommands := flag.Int("commands", 100, "Number of commands to submit")
	configPath := flag.String("config", "", "YAML config file (optional)")
	outputFile := flag.String("output", "", "Output JSON file for the leader's metrics (optional)")
	flag.Parse()

	if *clusterSize < 1 {
		log.Fatal("Cluster size must be at least 1")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	fmt.Printf("\n")
	fmt.Println("========================================")
	fmt.Println("RAFT PERFORMANCE BENCHMARK")
	fmt.Println("========================================")
	fmt.Printf("Cluster Size: %d nodes\n", *clusterSize)
	fmt.Printf("Commands: %d\n", *numCommands)
	fmt.Printf("Fault Injection: %t\n", cfg.Faults.Enabled)
	fmt.Println("========================================")
	fmt.Println()

	fmt.Println("🚀 Starting cluster...")
	c, err := controller.New(*clusterSize, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to start cluster: %v", err)
	}
	defer c.Cleanup()

	fmt.Println("⏳ Waiting for leader election...")
	leader, err := c.CheckOneLeader()
	if err != nil {
		log.Fatalf("❌ Could not find leader after startup: %v", err)
	}
	fmt.Printf("✓ Leader elected: peer %d\n", leader)
	fmt.Println()

	// Ctrl-C stops submitting and still prints what was measured.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("========================================")
	fmt.Println("RUNNING BENCHMARK")
	fmt.Println("========================================")
	fmt.Println()

	runBenchmark(ctx, c, *numCommands)

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("BENCHMARK COMPLETE")
	fmt.Println("========================================")
	fmt.Println()

	// The leader may have changed during the run.
	if current, err := c.CheckOneLeader(); err == nil {
		leader = current
	}
	report := c.Metrics(leader).Report(leader)
	if err := report.WriteText(os.Stdout); err != nil {
		log.Printf("Failed to print report: %v", err)
	}
	fmt.Printf("Calls served by the cluster: %d\n", c.CallCount())

	if *outputFile != "" {
		if err := report.SaveJSON(*outputFile); err != nil {
			log.Printf("Failed to write report to %s: %v", *outputFile, err)
		} else {
			fmt.Printf("\n✓ Report saved to %s\n", *outputFile)
		}
	}
}

func runBenchmark(ctx context.Context, c *controller.Controller, numCommands int) {
	start := time.Now()
	successCount, failCount := 0, 0

	for i := 1; i <= numCommands; i++ {
		if ctx.Err() != nil {
			fmt.Println("Interrupted, stopping early")
			break
		}

		if _, err := c.StartCommit(int64(i), c.Size()); err != nil {
			failCount++
			fmt.Printf("  ⚠️  Command %d failed: %v\n", i, err)
			continue
		}
		successCount++

		if i%10 == 0 {
			fmt.Printf("Progress: %d/%d commands sent (success=%d, failed=%d)\n", i, numCommands, successCount, failCount)
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("\n✓ Benchmark completed in %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  Successful: %d\n", successCount)
	fmt.Printf("  Failed: %d\n", failCount)
	if elapsed > 0 {
		fmt.Printf("  Throughput: %.2f cmd/s\n", float64(successCount)/elapsed.Seconds())
	}
}
