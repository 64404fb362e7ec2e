package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"raftpeer/internal/raft/config"
	"raftpeer/internal/raft/controller"
)

func main() {
	clusterSize := flag.Int("cluster-size", 5, "Number of peers in the cluster")
	leaky := flag.Bool("leaky", false, "Drop and delay a share of the peer to peer calls")
	flag.Parse()

	cfg := config.Default()
	cfg.Faults.Enabled = *leaky
	if *leaky {
		cfg.Faults.LossRate = config.DefaultLossRate
		cfg.Faults.Delay = config.DefaultDelay
	}

	fmt.Println("========================================")
	fmt.Println("Raft Demo: elections and log replication")
	fmt.Println("========================================")
	fmt.Println()

	c, err := controller.New(*clusterSize, cfg)
	if err != nil {
		log.Fatalf("Failed to start cluster: %v", err)
	}
	defer c.Cleanup()

	fmt.Println("Phase 1: Electing a leader")
	leader, err := c.CheckOneLeader()
	if err != nil {
		log.Fatalf("Election failed: %v", err)
	}
	term, _ := c.CheckTerms()
	fmt.Printf("  ✓ Peer %d leads term %d\n\n", leader, term)

	fmt.Println("Phase 2: Replicating commands to every peer")
	next := int64(100)
	commit := func(expected int) {
		index, err := c.StartCommit(next, expected)
		if err != nil {
			log.Fatalf("Command %d failed: %v", next, err)
		}
		fmt.Printf("  ✓ Command %d committed at index %d on at least %d peers\n", next, index, expected)
		next += 100
	}
	for i := 0; i < 3; i++ {
		commit(c.Size())
	}
	fmt.Println()

	fmt.Printf("Phase 3: Disconnecting leader %d\n", leader)
	c.Disconnect(leader)
	successor, err := c.CheckOneLeader()
	if err != nil {
		log.Fatalf("Re-election failed: %v", err)
	}
	fmt.Printf("  ✓ Peer %d took over\n", successor)
	commit(c.Size() - 1)
	fmt.Println()

	fmt.Printf("Phase 4: Reconnecting peer %d\n", leader)
	if err := c.Connect(leader); err != nil {
		log.Fatalf("Reconnect failed: %v", err)
	}
	commit(c.Size())
	fmt.Printf("  ✓ Peer %d caught up\n\n", leader)

	fmt.Println("Phase 5: Losing the majority")
	current, err := c.CheckOneLeader()
	if err != nil {
		log.Fatalf("No leader: %v", err)
	}
	var gone []int
	for i := 1; i <= c.Size()/2+1 && i < c.Size(); i++ {
		peer := (current + i) % c.Size()
		c.Disconnect(peer)
		gone = append(gone, peer)
	}
	report, err := c.IssueCommand(current, next)
	if err == nil && report.IsLeader {
		time.Sleep(2 * cfg.ElectionTimeoutMax)
		count, _, _ := c.CommittedLogIndex(report.LastLogIndex)
		fmt.Printf("  ✓ Command %d at index %d committed on %d peers\n", next, report.LastLogIndex, count)
	}
	for _, peer := range gone {
		if err := c.Connect(peer); err != nil {
			log.Fatalf("Reconnect failed: %v", err)
		}
	}
	next += 100
	commit(c.Size())
	fmt.Println()

	fmt.Println("========================================")
	fmt.Println("Metrics")
	fmt.Println("========================================")
	for i := 0; i < c.Size(); i++ {
		r := c.Metrics(i).Report(i)
		if err := r.WriteText(os.Stdout); err != nil {
			log.Printf("Failed to write report: %v", err)
		}
	}
	fmt.Printf("Calls served by the cluster: %d\n", c.CallCount())
}
