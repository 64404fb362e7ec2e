package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"raftpeer/internal/raft/config"
	"raftpeer/internal/raft/metrics"
	"raftpeer/internal/raft/server"
)

func main() {
	// Command line flags
	id := flag.Int("id", 0, "Peer id, between 0 and cluster-size-1")
	clusterSize := flag.Int("cluster-size", 3, "Number of peers in the cluster")
	configPath := flag.String("config", "", "YAML config file (optional)")
	host := flag.String("host", "", "Host every peer listens on (overrides the config)")
	basePort := flag.Int("base-port", 0, "Port of peer 0, peer i listens on base-port+i (overrides the config)")
	report := flag.String("report", "", "Write a JSON metrics report here on shutdown (optional)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *basePort != 0 {
		cfg.BasePort = *basePort
	}

	m := metrics.NewMetrics()
	srv, err := server.NewServer(server.PeerID(*id), *clusterSize, cfg, server.WithMetrics(m))
	if err != nil {
		log.Fatalf("Failed to create peer: %v", err)
	}

	addr, err := srv.Identity().Self()
	if err != nil {
		log.Fatalf("Failed to resolve own address: %v", err)
	}
	log.Printf("Starting Raft peer %d of %d on %s", *id, *clusterSize, addr)

	if err := srv.Activate(); err != nil {
		log.Fatalf("Peer failed to start: %v", err)
	}
	log.Printf("Peer is fully operational (election timeout %v)", cfg.ElectionTimeoutMin)

	// Wait for shutdown signal
	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-signalCtx.Done()

	log.Println("Shutting down...")
	srv.Close()

	if *report != "" {
		r := m.Report(*id)
		if err := r.SaveJSON(*report); err != nil {
			log.Printf("Failed to save metrics report: %v", err)
		}
	}
	log.Println("Peer stopped")
}
