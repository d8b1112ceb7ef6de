package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    "github.com/local/pagecomposer/internal/annotate"
    "github.com/local/pagecomposer/internal/assemble"
    "github.com/local/pagecomposer/internal/compose"
    cfgpkg "github.com/local/pagecomposer/internal/config"
    "github.com/local/pagecomposer/internal/filetype"
    "github.com/local/pagecomposer/internal/jobs"
    logpkg "github.com/local/pagecomposer/internal/logger"
    "github.com/local/pagecomposer/internal/metrics"
    "github.com/local/pagecomposer/internal/pagination"
    "github.com/local/pagecomposer/internal/raster"
    "github.com/local/pagecomposer/internal/rasterize"
    "github.com/local/pagecomposer/internal/server"
    "github.com/local/pagecomposer/internal/statuscheck"
    "github.com/local/pagecomposer/internal/store"
    "github.com/local/pagecomposer/internal/storage"
)

func main() {
    // .env is optional; real environment wins.
    _ = godotenv.Load()
    cfg := cfgpkg.FromEnv()

    // Init logging
    _ = logpkg.Init(logpkg.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()
    metrics.Init()

    opts, err := composeOptions(cfg.Composer)
    if err != nil {
        log.Fatal().Err(err).Msg("invalid composer configuration")
    }

    renderer, err := annotate.NewRenderer()
    if err != nil {
        log.Fatal().Err(err).Msg("failed to load annotation font")
    }
    mode := raster.ColorRGB
    if cfg.Composer.Grayscale { mode = raster.ColorGray }
    asm := assemble.New(cfg.Composer.JPEGQuality, mode)
    detector := filetype.New(cfg.Composer.SizeWarningBytes)
    fz := rasterize.New()

    // Status store
    var (
        status store.StatusStore
        redis  statuscheck.Pinger
    )
    if cfg.Status.RedisURL != "" {
        rs, err := store.NewRedisStatus(cfg.Status.RedisURL, cfg.Status.Prefix, cfg.Worker.JobTTL)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init redis status store")
        }
        defer rs.Close()
        status, redis = rs, rs
    } else {
        log.Info().Msg("REDIS_URL not set; keeping job status in memory")
        status = store.NewMemory(cfg.Worker.JobTTL)
    }

    // Result sink
    var (
        sink   storage.Sink
        s3Ping statuscheck.Pinger
    )
    if cfg.Storage.S3Bucket != "" {
        s3, err := storage.NewS3(context.Background(), cfg.Storage.S3Bucket, cfg.Storage.S3Prefix, cfg.Storage.S3Region)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init s3 result sink")
        }
        sink, s3Ping = s3, s3
    } else {
        local := storage.NewLocal(cfg.Storage.ResultDir)
        sink = local
        if cfg.Worker.JobTTL > 0 {
            go local.RunCleanup(context.Background(), cfg.Worker.JobTTL/4, cfg.Worker.JobTTL)
        }
    }

    pool := jobs.New(jobs.Config{Concurrency: cfg.Worker.Concurrency, QueueSize: cfg.Worker.QueueSize}, jobs.Dependencies{
        Status:  status,
        Sink:    sink,
        Compose: compose.Dependencies{Assembler: asm, Renderer: renderer, Detector: detector},
        Options: opts,
    })
    pool.Start()

    srv := server.New(server.Dependencies{
        Jobs:     pool,
        Status:   status,
        Sink:     sink,
        Detector: detector,
        Checker: statuscheck.New(statuscheck.Options{
            Redis:      redis,
            S3:         s3Ping,
            S3Bucket:   cfg.Storage.S3Bucket,
            ResultDir:  cfg.Storage.ResultDir,
            Rasterizer: fz,
        }),
        Rasterizer: fz,
        Assembler:  asm,
        Renderer:   renderer,
        Editor: compose.EditorOptions{
            Scale:           cfg.Composer.EditorScale,
            FontSize:        cfg.Composer.FontSize,
            Color:           cfg.Composer.TextColor,
            HistoryCapacity: cfg.Composer.HistoryCapacity,
            MinMaskSize:     cfg.Composer.MinMaskSize,
        },
        MaxUpload: cfg.Composer.MaxUploadBytes,
    })
    mux := http.NewServeMux()
    srv.RegisterRoutes(mux)

    port := cfg.HTTP.Port
    hs := &http.Server{Addr: ":" + port, Handler: mux}

    go func() {
        log.Info().Str("format", opts.Format.Name).Int("workers", cfg.Worker.Concurrency).Msgf("HTTP server listening on :%s", port)
        if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
    defer cancel()
    _ = hs.Shutdown(ctx)
    if err := pool.Stop(ctx); err != nil {
        log.Warn().Err(err).Msg("workers did not drain before shutdown")
    }
    fmt.Println("shutdown complete")
}

// composeOptions maps the environment onto layout options.
func composeOptions(c cfgpkg.ComposerConfig) (compose.Options, error) {
    opts := compose.DefaultOptions()
    if f, ok := pagination.FormatByName(c.PageFormat); ok {
        opts.Format = f
    } else if c.PageFormat == "custom" {
        opts.Format = pagination.PageFormat{Name: "custom", Width: c.PageWidthMM, Height: c.PageHeightMM}
    } else {
        return opts, fmt.Errorf("unknown PAGE_FORMAT %q", c.PageFormat)
    }
    if !opts.Format.Valid() {
        return opts, fmt.Errorf("invalid page size %vx%v mm", opts.Format.Width, opts.Format.Height)
    }
    opts.Tolerance = c.SingleTolerance
    opts.SearchRange = c.SearchRange
    opts.Sampler = raster.Sampler{AlphaThreshold: uint8(c.AlphaThreshold), WhiteTolerance: uint8(c.WhiteTolerance)}
    opts.MinMaskSize = c.MinMaskSize
    return opts, nil
}
