// cmd/storageserver is the main entrypoint for a swarm service node.
//
// Configuration is entirely via flags/environment, the way
// cmd/server/main.go took a flat set of flags for a KV node — extended
// here with the swarm node's own parameters: the registry daemon's
// JSON-RPC endpoint, the path to this node's ed25519 seed, force-start,
// and the DNS name the PoW difficulty schedule is refreshed from.
//
// Example:
//
//	./storageserver --addr :22021 --data-dir /var/storage/node1 \
//	                 --lokid-rpc http://127.0.0.1:22023/json_rpc \
//	                 --seed-file /etc/storage/key.seed
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"distributed-kvstore/internal/api"
	"distributed-kvstore/internal/cryptoutil"
	"distributed-kvstore/internal/listen"
	"distributed-kvstore/internal/msgstore"
	"distributed-kvstore/internal/node"
	"distributed-kvstore/internal/powschedule"
	"distributed-kvstore/internal/registry"
	"distributed-kvstore/internal/replicate"
	"distributed-kvstore/internal/stats"

	"github.com/gin-gonic/gin"
)

func main() {
	addr := flag.String("addr", ":22021", "Listen address (host:port)")
	dataDir := flag.String("data-dir", "/tmp/storageserver", "Directory for the message WAL and snapshot")
	lokidRPC := flag.String("lokid-rpc", "http://127.0.0.1:22023/json_rpc", "JSON-RPC endpoint of the registry daemon")
	seedFile := flag.String("seed-file", "", "Path to a 32-byte hex-encoded ed25519 seed; a random seed is used if empty (development only)")
	forceStart := flag.Bool("force-start", false, "Serve client writes even before hardfork/swarm/sync conditions are met")
	powDomain := flag.String("pow-domain", "pow-params.example.org", "DNS TXT name the PoW difficulty schedule is refreshed from")
	flag.Parse()

	seed, err := loadOrGenerateSeed(*seedFile)
	if err != nil {
		log.Fatalf("FATAL: load seed: %v", err)
	}
	keys, err := cryptoutil.DeriveKeys(seed)
	if err != nil {
		log.Fatalf("FATAL: derive keys: %v", err)
	}
	log.Printf("storageserver: this node's address is %s", keys.Address)

	store, err := msgstore.New(*dataDir)
	if err != nil {
		log.Fatalf("FATAL: open message store: %v", err)
	}
	defer store.Close()

	registryClient := registry.New(*lokidRPC)
	st := stats.New()
	replicator := replicate.New(keys, st)
	listeners := listen.New()
	powStore := powschedule.NewStore(powschedule.New([]powschedule.Entry{{ActivationMS: 0, Difficulty: 0}}))

	cfg := node.DefaultConfig()
	cfg.ForceStart = *forceStart

	n := node.New(cfg, keys, store, registryClient, replicator, listeners, st, powStore, nil)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go n.Run(rootCtx)

	refresher := powschedule.NewRefresher(powStore, powschedule.SystemResolver{}, *powDomain)
	go refresher.Run(rootCtx)

	go func() {
		ticker := time.NewTicker(60 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := store.Snapshot(); err != nil {
				log.Printf("storageserver: snapshot error: %v", err)
			} else {
				log.Printf("storageserver: snapshot saved")
			}
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(), api.Recovery())

	handler := api.NewHandler(n)
	handler.Register(router)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("storageserver listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("storageserver: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := store.Snapshot(); err != nil {
		log.Printf("storageserver: final snapshot error: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("storageserver: server shutdown error: %v", err)
	}
}

var errSeedLength = errors.New("seed file must contain exactly 32 bytes (64 hex chars)")

// loadOrGenerateSeed reads a 32-byte hex seed from path, or generates a
// fresh random one (logging a warning, since an unpersisted identity
// changes every restart) when path is empty.
func loadOrGenerateSeed(path string) ([32]byte, error) {
	var seed [32]byte
	if path == "" {
		log.Printf("storageserver: WARNING no --seed-file given, generating an ephemeral identity")
		if _, err := rand.Read(seed[:]); err != nil {
			return seed, err
		}
		return seed, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return seed, err
	}
	if len(decoded) != 32 {
		return seed, errSeedLength
	}
	copy(seed[:], decoded)
	return seed, nil
}
