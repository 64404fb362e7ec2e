package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"raftpeer/internal/raft/proto"
)

func main() {
	// Command line flags
	serverAddr := flag.String("server", "127.0.0.1:7000", "Peer address to connect to")
	op := flag.String("op", "status", "Operation: status, submit or get")
	command := flag.Int64("cmd", 1, "Command to submit, must be positive")
	index := flag.Uint64("index", 1, "Log index to read with get")
	timeout := flag.Duration("timeout", 5*time.Second, "Overall deadline of the call")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect to peer: %v", err)
	}
	defer conn.Close()

	client := proto.NewRaftServiceClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *op {
	case "status":
		report, err := client.GetStatus(ctx, &proto.GetStatusRequest{})
		if err != nil {
			log.Fatalf("GetStatus failed: %v", err)
		}
		printStatus(*serverAddr, report)

	case "submit":
		if *command <= 0 {
			log.Fatalf("Command must be positive, got %d", *command)
		}
		report, err := client.NewCommand(ctx, &proto.NewCommandRequest{Command: *command})
		if err != nil {
			log.Fatalf("NewCommand failed: %v", err)
		}
		printStatus(*serverAddr, report)
		if !report.IsLeader {
			fmt.Println("Not the leader, the command was not appended. Try another peer.")
		}

	case "get":
		resp, err := client.GetCommittedCmd(ctx, &proto.GetCommittedCmdRequest{Index: *index})
		if err != nil {
			log.Fatalf("GetCommittedCmd failed: %v", err)
		}
		if resp.Command == 0 {
			fmt.Printf("Index %d is not committed on %s\n", *index, *serverAddr)
			return
		}
		fmt.Printf("Index %d: %d\n", *index, resp.Command)

	default:
		log.Fatalf("Unknown operation %q", *op)
	}
}

func printStatus(addr string, report *proto.StatusReport) {
	fmt.Printf("Peer:           %s\n", addr)
	fmt.Printf("Leader:         %t\n", report.IsLeader)
	fmt.Printf("Term:           %d\n", report.Term)
	fmt.Printf("Last Log:       %d\n", report.LastLogIndex)
	fmt.Printf("Calls Served:   %d\n", report.CallCount)
}
