// cmd/storagectl is the CLI entry-point built with Cobra.
//
// Usage:
//
//	storagectl store <pubkey> <data>                --server http://localhost:22021 --auto-pow
//	storagectl retrieve <pubkey>                     --server http://localhost:22021 --last-hash <hash>
//	storagectl stats                                 --server http://localhost:22021
//	storagectl health                                --server http://localhost:22021
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"distributed-kvstore/internal/client"
	"distributed-kvstore/internal/powcheck"
	"distributed-kvstore/internal/powschedule"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "storagectl",
		Short: "CLI client for a swarm service node",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:22021", "Service node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(storeCmd(), retrieveCmd(), statsCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── store ────────────────────────────────────────────────────────────────────

func storeCmd() *cobra.Command {
	var (
		ttl        uint64
		nonce      string
		hash       string
		autoPow    bool
		difficulty int32
	)

	cmd := &cobra.Command{
		Use:   "store <pubkey> <data>",
		Short: "Store a message addressed to pubkey",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pubkey, data := args[0], []byte(args[1])
			ts := powschedule.NowMS()

			if autoPow {
				computedHash, ok := powcheck.Default(nonce, ts, ttl, pubkey, data, difficulty)
				if !ok {
					return fmt.Errorf("local pow computation did not meet difficulty %d", difficulty)
				}
				hash = computedHash
			}
			if hash == "" {
				return fmt.Errorf("either --hash (precomputed) or --auto-pow is required")
			}

			c := client.New(serverAddr, timeout)
			resp, err := c.Store(context.Background(), client.StoreRequest{
				Pubkey: pubkey, Data: data, Hash: hash, TTL: ttl, Timestamp: ts, Nonce: nonce,
			})
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&ttl, "ttl", uint64((24 * time.Hour).Milliseconds()), "Message TTL in milliseconds")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Proof-of-work nonce")
	cmd.Flags().StringVar(&hash, "hash", "", "Precomputed message hash (skip if --auto-pow is set)")
	cmd.Flags().BoolVar(&autoPow, "auto-pow", false, "Compute hash locally via the development powcheck stand-in instead of supplying --hash")
	cmd.Flags().Int32Var(&difficulty, "difficulty", 0, "Difficulty to satisfy when --auto-pow is set")
	return cmd
}

// ─── retrieve ─────────────────────────────────────────────────────────────────

func retrieveCmd() *cobra.Command {
	var (
		lastHash  string
		limit     int
		timeoutMS int
	)

	cmd := &cobra.Command{
		Use:   "retrieve <pubkey>",
		Short: "Retrieve messages addressed to pubkey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.Retrieve(context.Background(), args[0], lastHash, timeoutMS)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&lastHash, "last-hash", "", "Only return messages stored after this hash")
	cmd.Flags().IntVar(&limit, "limit", 0, "Unused client-side; server applies its own default limit")
	cmd.Flags().IntVar(&timeoutMS, "timeout-ms", 0, "Long-poll wait budget in milliseconds (0 = server default)")
	return cmd
}

// ─── stats / health ───────────────────────────────────────────────────────────

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Fetch the node's rolling per-peer counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			raw, err := c.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Fetch the node's liveness/readiness status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			raw, err := c.Health(context.Background())
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
