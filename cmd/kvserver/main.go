// cmd/kvserver is the main entrypoint for a replicated KV store node.
//
// Configuration comes from a YAML file, DISTSYS_-prefixed environment
// variables, or flags, in increasing order of precedence, via package
// config.
//
// Example — single node:
//
//	./kvserver --id node1 --addr :8080 --data-dir /var/distsys/node1
//
// Example — 3-node cluster, each joining through node1:
//
//	./kvserver --id node1 --addr :8080 --data-dir /tmp/n1
//	./kvserver --id node2 --addr :8081 --data-dir /tmp/n2 --seed http://localhost:8080
//	./kvserver --id node3 --addr :8082 --data-dir /tmp/n3 --seed http://localhost:8080
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"distsys/internal/api"
	"distsys/internal/client"
	"distsys/internal/cluster"
	"distsys/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	nodeID   string
	addr     string
	dataDir  string
	seedAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "kvserver",
		Short: "Run one node of the replicated KV store",
		RunE:  run,
	}

	root.Flags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	root.Flags().StringVar(&nodeID, "id", "", "unique node identifier (overrides config)")
	root.Flags().StringVar(&addr, "addr", "", "listen address, host:port (overrides config)")
	root.Flags().StringVar(&dataDir, "data-dir", "", "directory for WAL and snapshots (overrides config)")
	root.Flags().StringVar(&seedAddr, "seed", "", "base URL of an existing cluster member to join through")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("kvserver exited")
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if nodeID != "" {
		cfg.Node.ID = nodeID
	}
	if addr != "" {
		cfg.Node.Addr = addr
	}
	if dataDir != "" {
		cfg.Node.DataDir = dataDir
	}

	log := logrus.WithField("node", cfg.Node.ID)

	if cfg.Quorum.W+cfg.Quorum.R <= cfg.Quorum.N {
		log.Fatalf("W(%d) + R(%d) must be > N(%d) for strong consistency",
			cfg.Quorum.W, cfg.Quorum.R, cfg.Quorum.N)
	}

	peerClient := client.NewPeerClient(2 * time.Second)
	quorum := cluster.Quorum{N: cfg.Quorum.N, W: cfg.Quorum.W, R: cfg.Quorum.R}

	node, err := cluster.New(cfg.Node.ID, cfg.Node.Addr, cfg.Node.DataDir, quorum, peerClient, peerClient)
	if err != nil {
		return err
	}
	defer node.Stop()

	if seedAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		dir := client.NewRemoteDirectory(peerClient, seedAddr)
		err := node.Join(ctx, dir)
		cancel()
		if err != nil {
			return err
		}
		log.WithField("seed", seedAddr).Info("joined cluster")
	} else {
		node.Start()
		log.Info("started as first node in cluster")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(), api.Recovery())

	handler := api.NewHandler(node)
	handler.Register(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"node":   cfg.Node.ID,
			"status": "ok",
			"nodes":  node.Ring.NodeCount(),
		})
	})

	srv := &http.Server{
		Addr:         cfg.Node.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Node.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := node.Store.Snapshot(); err != nil {
				log.WithError(err).Warn("snapshot failed")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := node.Store.Snapshot(); err != nil {
		log.WithError(err).Warn("final snapshot failed")
	}
	return srv.Shutdown(ctx)
}
