package statuscheck

import (
    "context"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"
)

// Pinger models the minimal capability we need to probe a backend.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Availability reports whether an embedded engine can be used.
type Availability interface {
    IsAvailable() bool
}

// Checker aggregates health checks for the service's dependencies.
type Checker struct {
    redis      Pinger
    s3         Pinger
    s3Bucket   string
    resultDir  string
    rasterizer Availability
}

// Options configures the Checker. A nil Redis means statuses are kept in
// memory; a nil S3 means results go to ResultDir.
type Options struct {
    Redis      Pinger
    S3         Pinger
    S3Bucket   string
    ResultDir  string
    Rasterizer Availability
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Status     Status `json:"status_store"`
    Storage    Status `json:"storage"`
    Rasterizer Status `json:"rasterizer"`
}

// OK reports whether every subsystem is ready.
func (s Summary) OK() bool { return s.Status.OK && s.Storage.OK && s.Rasterizer.OK }

func New(opts Options) *Checker {
    return &Checker{
        redis:      opts.Redis,
        s3:         opts.S3,
        s3Bucket:   opts.S3Bucket,
        resultDir:  opts.ResultDir,
        rasterizer: opts.Rasterizer,
    }
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Status:     c.checkRedis(ctx),
        Storage:    c.checkStorage(ctx),
        Rasterizer: c.checkRasterizer(),
    }
}

func (c *Checker) checkRedis(ctx context.Context) Status {
    if c.redis == nil {
        return Status{OK: true, Message: "In memory"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.redis.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Redis connected"}
}

func (c *Checker) checkStorage(ctx context.Context) Status {
    if c.s3 != nil {
        ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
        defer cancel()
        if err := c.s3.Ping(ctx); err != nil {
            return Status{OK: false, Message: trimError(err)}
        }
        return Status{OK: true, Message: fmt.Sprintf("S3 bucket %s", c.s3Bucket)}
    }
    return c.checkResultDir()
}

func (c *Checker) checkResultDir() Status {
    if c.resultDir == "" {
        return Status{OK: false, Message: "Result directory not configured"}
    }
    if err := os.MkdirAll(c.resultDir, 0o755); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    f, err := os.CreateTemp(c.resultDir, ".probe-*")
    if err != nil {
        return Status{OK: false, Message: "Not writable"}
    }
    name := f.Name()
    _ = f.Close()
    _ = os.Remove(name)
    return Status{OK: true, Message: "Local " + filepath.Clean(c.resultDir)}
}

func (c *Checker) checkRasterizer() Status {
    if c.rasterizer == nil || !c.rasterizer.IsAvailable() {
        return Status{OK: false, Message: "Unavailable"}
    }
    return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
