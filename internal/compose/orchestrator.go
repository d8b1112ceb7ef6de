package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pagecomposer/internal/annotate"
	"github.com/local/pagecomposer/internal/filetype"
	"github.com/local/pagecomposer/internal/metrics"
	"github.com/local/pagecomposer/internal/pagination"
	"github.com/local/pagecomposer/internal/raster"
)

// ErrBusy is returned by Run when a run is in progress or its result has not
// been cleared with Reset.
var ErrBusy = errors.New("orchestrator is not idle")

// Options tune the layout of composed documents.
type Options struct {
	Format      pagination.PageFormat
	Tolerance   float64
	SearchRange int
	Sampler     raster.Sampler
	MinMaskSize int
}

// DefaultOptions lays out onto A4 with the stock thresholds.
func DefaultOptions() Options {
	return Options{
		Format:      pagination.A4,
		Tolerance:   pagination.DefaultSinglePageTolerance,
		SearchRange: pagination.DefaultSearchRange,
		Sampler:     raster.DefaultSampler(),
		MinMaskSize: annotate.MinMaskSize,
	}
}

// Dependencies are the collaborators of an Orchestrator. Renderer is only
// needed for requests that carry annotations; Detector defaults to one with
// the stock size warning.
type Dependencies struct {
	Assembler Assembler
	Renderer  *annotate.Renderer
	Detector  *filetype.Detector
}

// Request is one composition: an encoded PNG or JPEG and optional
// annotations drawn in source-image pixel coordinates.
type Request struct {
	Data        []byte
	Name        string
	Annotations *annotate.PageAnnotations
}

// Result is a finished composition.
type Result struct {
	Document []byte
	Name     string
	Mode     pagination.Mode
	Format   pagination.PageFormat
	Pages    int
	Plan     pagination.CutPlan
	Warnings []Warning
	Duration time.Duration
}

// Orchestrator drives one composition at a time through
// Idle → Loading → Analyzing → Slicing(n) → Finalizing → Done, or Failed.
// Use one Orchestrator per concurrent run.
type Orchestrator struct {
	deps    Dependencies
	opts    Options
	planner pagination.Planner

	mu       sync.Mutex
	progress Progress
	result   *Result
	err      error
	notify   ProgressFunc
}

// New returns an idle Orchestrator.
func New(deps Dependencies, opts Options) *Orchestrator {
	if !opts.Format.Valid() {
		opts.Format = pagination.A4
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = pagination.DefaultSinglePageTolerance
	}
	if opts.SearchRange <= 0 {
		opts.SearchRange = pagination.DefaultSearchRange
	}
	if opts.Sampler == (raster.Sampler{}) {
		opts.Sampler = raster.DefaultSampler()
	}
	if opts.MinMaskSize <= 0 {
		opts.MinMaskSize = annotate.MinMaskSize
	}
	if deps.Detector == nil {
		deps.Detector = filetype.New(0)
	}
	return &Orchestrator{
		deps: deps,
		opts: opts,
		planner: pagination.Planner{
			Format:    opts.Format,
			Tolerance: opts.Tolerance,
			Resolver:  pagination.Resolver{Sampler: opts.Sampler, SearchRange: opts.SearchRange},
		},
		progress: Progress{State: StateIdle},
	}
}

// OnProgress installs fn to receive every progress update.
func (o *Orchestrator) OnProgress(fn ProgressFunc) {
	o.mu.Lock()
	o.notify = fn
	o.mu.Unlock()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress.State
}

func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// Outcome returns the terminal result or error of the last run.
func (o *Orchestrator) Outcome() (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result, o.err
}

// Reset returns a finished orchestrator to Idle. It fails while a run is in
// progress.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.progress.State {
	case StateIdle:
		return nil
	case StateDone, StateFailed:
		o.progress = Progress{State: StateIdle}
		o.result, o.err = nil, nil
		return nil
	}
	return fmt.Errorf("cannot reset while %s", o.progress.State)
}

// Run composes req. The source format is checked before the run starts; an
// unsupported source leaves the orchestrator Idle. Once started, the run
// always ends in Done or Failed; ctx cancellation does not interrupt it.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	info := o.deps.Detector.Detect(req.Data)
	if !info.IsImage() {
		return nil, NewUnsupportedFormatError(info.MIMEType)
	}

	o.mu.Lock()
	if o.progress.State != StateIdle {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.progress = Progress{State: StateLoading, Status: LabelLoading}
	notify := o.notify
	o.mu.Unlock()
	if notify != nil {
		notify(Progress{State: StateLoading, Status: LabelLoading})
	}

	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	res, err := o.run(ctx, req)
	mode := "unknown"
	if res != nil {
		mode = string(res.Mode)
	}
	if err != nil {
		code, _ := CodeOf(err)
		metrics.IncFailure(string(code))
		metrics.ObserveComposition(mode, "failed", time.Since(start))
		log.Error().Err(err).Str("name", req.Name).Msg("composition failed")
		o.finish(nil, err)
		return nil, err
	}
	res.Duration = time.Since(start)
	if w, ok := o.deps.Detector.OversizeWarning(int64(len(req.Data))); ok {
		res.Warnings = append(res.Warnings, Warning{Code: WarningSize, Message: w})
	}
	metrics.ObserveComposition(mode, "success", res.Duration)
	metrics.AddPages("compose", res.Pages)
	log.Info().Str("name", req.Name).Str("mode", mode).Int("pages", res.Pages).Dur("took", res.Duration).Msg("composition done")
	o.finish(res, nil)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*Result, error) {
	buf, format, err := raster.Decode(req.Data)
	if err != nil {
		return nil, NewDecodeError("source image", err)
	}
	if req.Annotations != nil && !req.Annotations.Empty() {
		if o.deps.Renderer == nil {
			return nil, errors.New("annotations given but no renderer configured")
		}
		buf = o.deps.Renderer.Composite(buf, req.Annotations.Normalize(o.opts.MinMaskSize))
	}
	w, h := buf.Bounds().Dx(), buf.Bounds().Dy()
	log.Debug().Str("format", format).Int("width", w).Int("height", h).Msg("source loaded")
	yield()

	o.enter(Progress{State: StateAnalyzing, Status: LabelAnalyzing})
	plan, err := o.planner.Layout(w, h)
	if err != nil {
		return nil, NewDecodeError("source geometry", err)
	}
	res := &Result{Name: OutputName(req.Name), Mode: plan.Mode, Format: plan.Format}
	yield()

	var pages []Page
	if plan.Mode == pagination.ModeSingle {
		o.enter(Progress{State: StateSlicing, CurrentPage: 1, TotalPages: 1, Status: LabelSingle})
		pages = append(pages, Page{
			Image:     raster.FlattenOnWhite(buf),
			Width:     plan.Format.Width,
			Height:    plan.Format.Height,
			Anchor:    AnchorCenter,
			Placement: plan.Placement,
		})
		res.Plan = plan.Pages
		metrics.IncCut(string(pagination.CutEnd))
		yield()
	} else {
		pages, res.Plan = o.slice(buf, plan)
	}
	res.Pages = len(pages)

	o.enter(Progress{State: StateFinalizing, CurrentPage: len(pages), TotalPages: len(pages), Status: LabelFinalizing})
	doc, err := o.deps.Assembler.Assemble(ctx, pages)
	if err != nil {
		return res, NewEncodeError(err)
	}
	res.Document = doc
	return res, nil
}

// slice walks the cut plan one boundary at a time, yielding after each page.
func (o *Orchestrator) slice(buf *image.NRGBA, plan pagination.Plan) ([]Page, pagination.CutPlan) {
	g := plan.Geometry
	cur := pagination.NewCursor(buf, g, o.planner.Resolver)
	var (
		pages []Page
		cuts  pagination.CutPlan
	)
	for n := 1; ; n++ {
		r, ok := cur.Next()
		if !ok {
			break
		}
		total := plan.EstimatedPages
		if n > total {
			total = n
		}
		o.enter(Progress{State: StateSlicing, CurrentPage: n, TotalPages: total, Status: LabelPage(n)})
		cuts = append(cuts, r)
		metrics.IncCut(string(r.Kind))
		pages = append(pages, Page{
			Image:     raster.Slice(buf, r.StartY, r.EndY),
			Width:     g.PageWidth,
			Height:    g.PageHeight,
			Anchor:    AnchorTop,
			Placement: pagination.Rect{Width: g.PageWidth, Height: g.SliceHeight(r.Height())},
		})
		log.Debug().Int("page", n).Int("start_y", r.StartY).Int("end_y", r.EndY).Str("cut", string(r.Kind)).Msg("page sliced")
		yield()
	}
	return pages, cuts
}

// enter moves to the state in p and publishes it. Callers only request legal
// transitions; anything else is a bug.
func (o *Orchestrator) enter(p Progress) {
	o.mu.Lock()
	from := o.progress.State
	if !from.CanTransition(p.State) {
		o.mu.Unlock()
		panic(fmt.Sprintf("compose: illegal transition %s -> %s", from, p.State))
	}
	o.progress = p
	notify := o.notify
	o.mu.Unlock()
	if notify != nil {
		notify(p)
	}
}

func (o *Orchestrator) finish(res *Result, err error) {
	o.mu.Lock()
	o.result, o.err = res, err
	p := o.progress
	o.mu.Unlock()
	if err != nil {
		p.State, p.Status = StateFailed, err.Error()
	} else {
		p.State, p.Status = StateDone, LabelDone
		p.CurrentPage, p.TotalPages = res.Pages, res.Pages
	}
	o.enter(p)
}

func yield() { runtime.Gosched() }
