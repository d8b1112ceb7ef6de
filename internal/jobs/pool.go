package jobs

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/pagecomposer/internal/compose"
    "github.com/local/pagecomposer/internal/metrics"
    "github.com/local/pagecomposer/internal/store"
    "github.com/local/pagecomposer/internal/storage"
)

var (
    ErrQueueFull = errors.New("job queue is full")
    ErrClosed    = errors.New("job pool is stopped")
)

// Metadata keys written to a job's status record.
const (
    MetaName      = "name"
    MetaSource    = "source"
    MetaResult    = "result"
    MetaMode      = "mode"
    MetaPages     = "pages"
    MetaWarnings  = "warnings"
    MetaErrorCode = "error_code"
)

type Config struct {
    Concurrency int
    QueueSize   int
}

// Dependencies are shared by every job; each job gets its own Orchestrator.
type Dependencies struct {
    Status  store.StatusStore
    Sink    storage.Sink
    Compose compose.Dependencies
    Options compose.Options
    Timeout time.Duration // bound on status and sink calls
}

type job struct {
    id  string
    req compose.Request
}

// Pool runs compositions on a fixed number of workers fed by a bounded queue.
type Pool struct {
    cfg  Config
    deps Dependencies

    mu     sync.RWMutex
    closed bool
    queue  chan job
    wg     sync.WaitGroup

    queued   atomic.Int64
    inFlight atomic.Int64
    now      func() time.Time
}

func New(cfg Config, deps Dependencies) *Pool {
    if cfg.Concurrency <= 0 { cfg.Concurrency = 2 }
    if cfg.QueueSize <= 0 { cfg.QueueSize = 64 }
    if deps.Timeout <= 0 { deps.Timeout = 10 * time.Second }
    return &Pool{cfg: cfg, deps: deps, queue: make(chan job, cfg.QueueSize), now: time.Now}
}

func (p *Pool) Start() {
    for i := 0; i < p.cfg.Concurrency; i++ {
        p.wg.Add(1)
        go p.loop(i)
    }
}

// Stop refuses new work and waits for queued and running jobs to finish or
// for ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
    p.mu.Lock()
    if !p.closed {
        p.closed = true
        close(p.queue)
    }
    p.mu.Unlock()

    done := make(chan struct{})
    go func() { p.wg.Wait(); close(done) }()
    select {
    case <-done:
        return nil
    case <-ctx.Done():
        return fmt.Errorf("stop job pool: %w", ctx.Err())
    }
}

// Submit records a queued status for req and hands it to a worker. It
// returns the new job id.
func (p *Pool) Submit(ctx context.Context, req compose.Request) (string, error) {
    p.mu.RLock()
    defer p.mu.RUnlock()
    if p.closed {
        return "", ErrClosed
    }

    id := uuid.NewString()
    now := p.now()
    st := store.Status{
        Status:   store.StatusQueued,
        Message:  "Queued",
        Start:    &now,
        Metadata: map[string]interface{}{MetaName: compose.OutputName(req.Name), MetaSource: req.Name},
    }
    if err := p.deps.Status.Set(ctx, id, st); err != nil {
        return "", fmt.Errorf("record job: %w", err)
    }

    select {
    case p.queue <- job{id: id, req: req}:
        metrics.SetQueued(int(p.queued.Add(1)))
        log.Info().Str("job_id", id).Str("name", req.Name).Int("bytes", len(req.Data)).Msg("composition queued")
        return id, nil
    default:
        end := p.now()
        st.Status, st.Message, st.End = store.StatusFailed, ErrQueueFull.Error(), &end
        _ = p.deps.Status.Set(ctx, id, st)
        return "", ErrQueueFull
    }
}

func (p *Pool) loop(id int) {
    defer p.wg.Done()
    log.Info().Int("worker", id).Msg("composition worker started")
    for j := range p.queue {
        metrics.SetQueued(int(p.queued.Add(-1)))
        metrics.SetInFlight(int(p.inFlight.Add(1)))
        p.process(j)
        metrics.SetInFlight(int(p.inFlight.Add(-1)))
    }
    log.Info().Int("worker", id).Msg("composition worker stopped")
}

func (p *Pool) process(j job) {
    l := log.With().Str("job_id", j.id).Logger()
    start := p.now()
    base := store.Status{
        Status:   store.StatusRunning,
        Start:    &start,
        Metadata: map[string]interface{}{MetaName: compose.OutputName(j.req.Name), MetaSource: j.req.Name},
    }

    o := compose.New(p.deps.Compose, p.deps.Options)
    o.OnProgress(func(pr compose.Progress) {
        if pr.State.Terminal() {
            return
        }
        st := base
        st.Progress = Percent(pr)
        st.Message = pr.Status
        st.CurrentPage, st.TotalPages = pr.CurrentPage, pr.TotalPages
        p.setStatus(j.id, st)
    })

    res, err := o.Run(context.Background(), j.req)
    end := p.now()
    final := base
    final.End = &end
    if err == nil {
        ref, serr := p.save(j.id, res)
        if serr != nil {
            err = serr
        } else {
            final.Status, final.Progress, final.Message = store.StatusCompleted, 100, compose.LabelDone
            final.CurrentPage, final.TotalPages = res.Pages, res.Pages
            final.Metadata[MetaName] = res.Name
            final.Metadata[MetaResult] = ref
            final.Metadata[MetaMode] = string(res.Mode)
            final.Metadata[MetaPages] = res.Pages
            if len(res.Warnings) > 0 {
                msgs := make([]string, 0, len(res.Warnings))
                for _, w := range res.Warnings {
                    msgs = append(msgs, w.Message)
                }
                final.Metadata[MetaWarnings] = msgs
            }
            l.Info().Str("result", ref).Int("pages", res.Pages).Dur("took", end.Sub(start)).Msg("job completed")
        }
    }
    if err != nil {
        pr := o.Progress()
        final.Status, final.Message = store.StatusFailed, err.Error()
        final.Progress = Percent(pr)
        final.CurrentPage, final.TotalPages = pr.CurrentPage, pr.TotalPages
        if code, ok := compose.CodeOf(err); ok {
            final.Metadata[MetaErrorCode] = string(code)
        }
        l.Error().Err(err).Msg("job failed")
    }
    p.setStatus(j.id, final)
}

func (p *Pool) save(id string, res *compose.Result) (string, error) {
    ctx, cancel := context.WithTimeout(context.Background(), p.deps.Timeout)
    defer cancel()
    ref, err := p.deps.Sink.Save(ctx, id, res.Name, res.Document)
    if err != nil {
        return "", fmt.Errorf("save result: %w", err)
    }
    return ref, nil
}

func (p *Pool) setStatus(id string, st store.Status) {
    ctx, cancel := context.WithTimeout(context.Background(), p.deps.Timeout)
    defer cancel()
    if err := p.deps.Status.Set(ctx, id, st); err != nil {
        log.Warn().Err(err).Str("job_id", id).Msg("status update failed")
    }
}

// Percent maps orchestrator progress onto 0..100. Slicing spans 10..90.
func Percent(pr compose.Progress) int {
    switch pr.State {
    case compose.StateLoading:
        return 5
    case compose.StateAnalyzing:
        return 10
    case compose.StateSlicing:
        if pr.TotalPages <= 0 {
            return 10
        }
        return 10 + 80*pr.CurrentPage/pr.TotalPages
    case compose.StateFinalizing:
        return 90
    case compose.StateDone:
        return 100
    }
    return 0
}
