package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ComposerConfig tunes layout, cut search and the editor.
type ComposerConfig struct {
    PageFormat       string  // "A4" | "Letter" | "custom"
    PageWidthMM      float64 // used when PageFormat is "custom"
    PageHeightMM     float64
    SearchRange      int
    WhiteTolerance   int
    AlphaThreshold   int
    SingleTolerance  float64
    JPEGQuality      int
    Grayscale        bool
    SizeWarningBytes int64
    HistoryCapacity  int
    MinMaskSize      int
    EditorScale      float64
    FontSize         float64
    TextColor        string
    MaxUploadBytes   int64
}

// WorkerConfig defines the composition worker pool.
type WorkerConfig struct {
    Concurrency int
    QueueSize   int
    JobTTL      time.Duration
}

// StatusConfig selects where job status lives. Empty RedisURL keeps it in
// memory.
type StatusConfig struct {
    RedisURL string
    Prefix   string
}

// StorageConfig selects where finished documents are written.
type StorageConfig struct {
    ResultDir string
    S3Bucket  string
    S3Prefix  string
    S3Region  string
}

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
    Port            string
    ShutdownTimeout time.Duration
}

// Config is the top-level configuration.
type Config struct {
    Logging  LoggingConfig
    Axiom    AxiomConfig
    Composer ComposerConfig
    Worker   WorkerConfig
    Status   StatusConfig
    Storage  StorageConfig
    HTTP     HTTPConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/pagecomposer.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_pagecomposer",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Composer = ComposerConfig{
        PageFormat:       getEnv("PAGE_FORMAT", "A4"),
        PageWidthMM:      parseFloat(getEnv("PAGE_WIDTH_MM", "210"), 210),
        PageHeightMM:     parseFloat(getEnv("PAGE_HEIGHT_MM", "297"), 297),
        SearchRange:      parseInt(getEnv("CUT_SEARCH_RANGE", "80"), 80),
        WhiteTolerance:   parseInt(getEnv("WHITE_TOLERANCE", "250"), 250),
        AlphaThreshold:   parseInt(getEnv("ALPHA_THRESHOLD", "10"), 10),
        SingleTolerance:  parseFloat(getEnv("SINGLE_PAGE_TOLERANCE", "1.2"), 1.2),
        JPEGQuality:      parseInt(getEnv("JPEG_QUALITY", "92"), 92),
        Grayscale:        parseBool(getEnv("GRAYSCALE", "false")),
        SizeWarningBytes: int64(parseInt(getEnv("SIZE_WARNING_MB", "20"), 20)) << 20,
        HistoryCapacity:  parseInt(getEnv("HISTORY_CAPACITY", "20"), 20),
        MinMaskSize:      parseInt(getEnv("MIN_MASK_SIZE", "5"), 5),
        EditorScale:      parseFloat(getEnv("EDITOR_SCALE", "1.5"), 1.5),
        FontSize:         parseFloat(getEnv("TEXT_FONT_SIZE", "14"), 14),
        TextColor:        getEnv("TEXT_COLOR", "#000000"),
        MaxUploadBytes:   int64(parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100)) << 20,
    }
    if cfg.Composer.WhiteTolerance < 0 || cfg.Composer.WhiteTolerance > 255 { cfg.Composer.WhiteTolerance = 250 }
    if cfg.Composer.AlphaThreshold < 0 || cfg.Composer.AlphaThreshold > 255 { cfg.Composer.AlphaThreshold = 10 }

    cfg.Worker = WorkerConfig{
        Concurrency: parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
        QueueSize:   parseInt(getEnv("WORKER_QUEUE_SIZE", "64"), 64),
        JobTTL:      parseDuration(getEnv("JOB_TTL", "1h"), time.Hour),
    }
    if cfg.Worker.Concurrency < 1 { cfg.Worker.Concurrency = 1 }

    cfg.Status = StatusConfig{
        RedisURL: getEnv("REDIS_URL", ""),
        Prefix:   getEnv("STATUS_PREFIX", "pagecomposer:job:"),
    }

    cfg.Storage = StorageConfig{
        ResultDir: getEnv("RESULT_DIR", "results"),
        S3Bucket:  getEnv("AWS_S3_BUCKET", ""),
        S3Prefix:  getEnv("AWS_S3_PREFIX", "pagecomposer/"),
        S3Region:  getEnv("AWS_REGION", ""),
    }

    cfg.HTTP = HTTPConfig{
        Port:            getEnv("PORT", "8080"),
        ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"), 30*time.Second),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
