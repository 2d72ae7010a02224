// Command kbd is the knowledge-base engine's daemon entrypoint: it wires
// every adapter (C1-C6, C8) into a running pipeline.Pipeline, starts the
// task.Pool workers that drive catalog.Task rows through it, and serves
// the tool-protocol HTTP surface (toolsrv). Grounded on the teacher's
// main.go, whose actual logic is `cli.RootCmd.Execute()` wrapped in a
// log.Fatal — here the equivalent shape is "build every service, start
// them, wait for a shutdown signal", following cli/root.go's runServer
// for the start/signal/graceful-shutdown sequence, since the teacher's
// own main.go delegates startup entirely to its cli package.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"kbengine.dev/auth"
	"kbengine.dev/blob"
	"kbengine.dev/catalog"
	"kbengine.dev/chunk"
	"kbengine.dev/common"
	"kbengine.dev/config"
	"kbengine.dev/index"
	"kbengine.dev/modelgateway"
	"kbengine.dev/pipeline"
	"kbengine.dev/render"
	"kbengine.dev/search"
	"kbengine.dev/task"
	"kbengine.dev/toolsrv"
)

func main() {
	cfgPath := flag.String("config", "", "config file path")
	flag.Parse()

	log := common.NewLogger("kbd", common.LoggerConfig{})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := gorm.Open(postgres.Open(cfg.Catalog.DSN), &gorm.Config{})
	if err != nil {
		log.WithError(err).Fatal("connecting to catalog store")
	}
	if err := catalog.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("running catalog migrations")
	}
	if err := auth.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("running auth migrations")
	}
	store := catalog.NewGormStore(db)

	authTokens := auth.NewTokenService(cfg.Auth.SigningSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	authCfg := auth.DefaultConfig()
	authCfg.BcryptCost = cfg.Auth.BcryptCost
	authSvc := auth.NewService(auth.NewGormStore(db), authTokens, authCfg, log.WithField("component", "auth"))

	blobStore, err := blob.New(ctx, blob.Config{
		Endpoint:        cfg.Blob.Endpoint,
		Region:          cfg.Blob.Region,
		AccessKeyID:     cfg.Blob.AccessKeyID,
		SecretAccessKey: cfg.Blob.SecretAccessKey,
		UsePathStyle:    cfg.Blob.UsePathStyle,
	})
	if err != nil {
		log.WithError(err).Fatal("constructing blob store")
	}

	idx, err := index.New(index.Config{
		Addresses: cfg.Index.Addresses,
		Username:  cfg.Index.Username,
		Password:  cfg.Index.Password,
		IndexName: cfg.Index.IndexName,
	}, log.WithField("component", "index"))
	if err != nil {
		log.WithError(err).Fatal("constructing index client")
	}
	if err := idx.EnsureIndex(ctx, cfg.Index.VectorDim); err != nil {
		log.WithError(err).Fatal("ensuring index exists")
	}

	gateway := modelgateway.New(modelgateway.Config{
		EmbedURL:       cfg.ModelGateway.EmbedEndpoint,
		VLMURL:         cfg.ModelGateway.VLMEndpoint,
		CallTimeout:    cfg.ModelGateway.EmbedTimeout,
		MaxAttempts:    cfg.ModelGateway.MaxRetries,
		InitialBackoff: cfg.ModelGateway.RetryBaseDelay,
	}, log.WithField("component", "modelgateway"))

	converter := &render.HTTPConverter{Endpoint: cfg.Render.ConvertEndpoint, Timeout: cfg.Render.CallTimeout}
	ocr := &render.HTTPOCREngine{Endpoint: cfg.Render.OCREndpoint, Timeout: cfg.Render.CallTimeout}
	registry := render.NewRegistry(converter, ocr)

	splitter := chunk.New(chunk.Config{
		TargetLength:  cfg.Chunk.TargetSize,
		OverlapLength: cfg.Chunk.Overlap,
		HardCap:       cfg.Chunk.HardCap,
	})

	versions := catalog.NewVersionManager(store, idx, blobStore, log.WithField("component", "versions"))

	pipe := pipeline.New(pipeline.Config{
		Store:    store,
		Blob:     blobStore,
		Render:   registry,
		OCR:      ocr,
		Gateway:  gateway,
		Index:    idx,
		Chunker:  splitter,
		Versions: versions,
		Bucket:   cfg.Blob.Bucket,
	}, log.WithField("component", "pipeline"))

	poolCfg := task.DefaultPoolConfig()
	if cfg.Pool.CPUPoolSize > 0 {
		poolCfg.CPUWorkers = cfg.Pool.CPUPoolSize
	}
	if cfg.Pool.ModelPoolSize > 0 {
		poolCfg.ModelWorkers = cfg.Pool.ModelPoolSize
	}
	if cfg.Pool.LeaseTTL > 0 {
		poolCfg.LeaseTTL = cfg.Pool.LeaseTTL
	}
	if cfg.Pool.HeartbeatTTL > 0 {
		poolCfg.HeartbeatInterval = cfg.Pool.HeartbeatTTL
	}
	if cfg.Pool.MaxAttempts > 0 {
		poolCfg.MaxAttempts = cfg.Pool.MaxAttempts
	}
	pool := task.NewPool(store, pipe, poolCfg, log.WithField("component", "task_pool"))
	pool.Start(ctx)

	orchestrator := search.New(store, idx, gateway)
	toolServer := toolsrv.New(authSvc, orchestrator, idx, log.WithField("component", "toolsrv"))

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("starting tool-protocol server")
		if err := toolServer.Echo.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("tool-protocol server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := toolServer.Echo.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("tool-protocol server shutdown error")
	}

	fmt.Println("kbd stopped")
}
