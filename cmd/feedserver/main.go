// cmd/feedserver is the main entrypoint for a news-feed node: social
// graph, post catalog, fan-out dispatcher, and Redis-backed feed index
// and action ledger, served over HTTP.
//
// Example:
//
//	./feedserver --addr :9090 --redis localhost:6379
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"distsys/internal/api"
	"distsys/internal/config"
	"distsys/internal/feed"
	"distsys/internal/feedapi"
	"distsys/internal/idgen"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	addr      string
	redisAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "feedserver",
		Short: "Run the news-feed node",
		RunE:  run,
	}

	root.Flags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	root.Flags().StringVar(&addr, "addr", "", "listen address, host:port (overrides config)")
	root.Flags().StringVar(&redisAddr, "redis", "", "redis address (overrides config)")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("feedserver exited")
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Node.Addr = addr
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if cfg.Node.Addr == "" {
		cfg.Node.Addr = ":9090"
	}

	log := logrus.WithField("component", "feedserver")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	alloc, err := idgen.New(idgen.Config{
		DatacenterID: cfg.IDGen.DatacenterID,
		MachineID:    cfg.IDGen.MachineID,
		EpochMs:      cfg.IDGen.EpochMs,
	})
	if err != nil {
		return err
	}

	graph := feed.NewSocialGraph()
	catalog := feed.NewPostCatalog(alloc)
	index := feed.NewFeedIndex(rdb, cfg.Feed.MaxFeedSize)
	ledger := feed.NewActionLedger(rdb)
	dispatcher := feed.NewFanoutDispatcher(graph, index, cfg.Feed.CelebrityThreshold, cfg.Feed.FanoutBatchSize, cfg.Feed.FanoutWorkers)
	defer dispatcher.Close()

	engine := feed.NewFeedEngine(graph, catalog, dispatcher, index, ledger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(), api.Recovery())

	handler := feedapi.NewHandler(engine)
	handler.Register(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
