package daemon

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docwiki/internal/catalogue"
	"git.home.luguber.info/inful/docwiki/internal/config"
	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/generation"
	"git.home.luguber.info/inful/docwiki/internal/git"
	"git.home.luguber.info/inful/docwiki/internal/knowledge"
	"git.home.luguber.info/inful/docwiki/internal/llm"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
	"git.home.luguber.info/inful/docwiki/internal/metrics"
	"git.home.luguber.info/inful/docwiki/internal/models"
	"git.home.luguber.info/inful/docwiki/internal/notify"
	"git.home.luguber.info/inful/docwiki/internal/observability"
	"git.home.luguber.info/inful/docwiki/internal/outline"
	"git.home.luguber.info/inful/docwiki/internal/prompts"
	"git.home.luguber.info/inful/docwiki/internal/store"
)

// Stage names a step of the job pipeline.
type Stage string

const (
	StageAcquire   Stage = "acquire"
	StageCatalogue Stage = "catalogue"
	StageOutline   Stage = "outline"
	StageContent   Stage = "content"
	StageGraph     Stage = "graph"
	StageOverview  Stage = "overview"
)

// Stages lists the pipeline in execution order.
var Stages = []Stage{StageAcquire, StageCatalogue, StageOutline, StageContent, StageGraph, StageOverview}

// errCanceled signals that the job was canceled between stages.
var errCanceled = stdErrors.New("job canceled")

// BackendProvider resolves the generation backend for a configuration.
// *llm.Registry satisfies it.
type BackendProvider interface {
	Get(cfg config.LLMConfig) (llm.Backend, error)
}

// ConfigSource returns the configuration snapshot a new job runs with.
type ConfigSource func() *config.Config

// Deps are the collaborators of the job pipeline.
type Deps struct {
	Store    store.Store
	Source   git.Source
	Backends BackendProvider
	Notifier notify.Notifier
	Recorder metrics.Recorder
	Config   ConfigSource
	Now      func() time.Time
}

func (d *Deps) defaults() {
	if d.Notifier == nil {
		d.Notifier = notify.Noop{}
	}
	if d.Recorder == nil {
		d.Recorder = metrics.NoopRecorder{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// Processor runs claimed jobs through the stages.
type Processor struct {
	deps Deps
}

// NewProcessor validates deps and returns a processor.
func NewProcessor(deps Deps) (*Processor, error) {
	if deps.Store == nil || deps.Source == nil || deps.Backends == nil || deps.Config == nil {
		return nil, derrors.InternalError("processor dependencies", fmt.Errorf("store, source, backends and config are required"))
	}
	deps.defaults()
	return &Processor{deps: deps}, nil
}

// run is the per-job state threaded through the stages.
type run struct {
	job     *models.Job
	cfg     *config.Config
	backend llm.Backend
	engine  *generation.Engine

	stage     Stage
	localPath string
	shared    prompts.Shared
	known     map[string]bool
	doc       *models.DocumentRecord
}

// Process runs every stage of a claimed job and records the outcome. The
// returned error is the stage failure, if any; it has already been stored
// on the job.
func (p *Processor) Process(ctx context.Context, job *models.Job) error {
	ctx = observability.WithJobID(ctx, job.ID)
	start := p.deps.Now()
	p.publish(ctx, job, "", "")

	r := &run{job: job, cfg: p.deps.Config()}
	err := p.runStages(ctx, r)
	p.deps.Recorder.ObserveJobDuration(p.deps.Now().Sub(start))

	switch {
	case err == nil:
		return p.finish(ctx, r)
	case stdErrors.Is(err, errCanceled):
		observability.InfoContext(ctx, "Job canceled between stages")
		p.deps.Recorder.IncJobOutcome(string(models.JobCanceled))
		return nil
	case ctx.Err() != nil:
		// Shutdown: leave the job Processing so the next instance resumes it.
		observability.WarnContext(ctx, "Job interrupted by shutdown", logfields.Error(err))
		return ctx.Err()
	default:
		p.fail(ctx, job, r.stage, err)
		return err
	}
}

func (p *Processor) runStages(ctx context.Context, r *run) error {
	steps := map[Stage]func(context.Context, *run) error{
		StageAcquire:   p.acquire,
		StageCatalogue: p.catalogue,
		StageOutline:   p.outline,
		StageContent:   p.content,
		StageGraph:     p.graph,
		StageOverview:  p.overview,
	}
	for _, stage := range Stages {
		if err := p.checkCanceled(ctx, r.job.ID); err != nil {
			return err
		}
		r.stage = stage
		sctx := observability.WithStage(ctx, string(stage))
		observability.DebugContext(sctx, "Stage started")

		t0 := p.deps.Now()
		err := steps[stage](sctx, r)
		p.deps.Recorder.ObserveStageDuration(string(stage), p.deps.Now().Sub(t0))
		if err != nil {
			p.deps.Recorder.IncStageResult(string(stage), stageResult(ctx, err))
			if stdErrors.Is(err, errCanceled) || ctx.Err() != nil {
				return err
			}
			if _, ok := derrors.As(err); !ok {
				err = derrors.StageFailed(string(stage), err)
			}
			observability.ErrorContext(sctx, "Stage failed", logfields.Error(err))
			return err
		}
		p.deps.Recorder.IncStageResult(string(stage), metrics.ResultSuccess)
		observability.InfoContext(sctx, "Stage completed", logfields.DurationMS(float64(p.deps.Now().Sub(t0).Milliseconds())))
	}
	return nil
}

func stageResult(ctx context.Context, err error) metrics.ResultLabel {
	if ctx.Err() != nil || stdErrors.Is(err, errCanceled) {
		return metrics.ResultCanceled
	}
	return metrics.ResultFatal
}

// checkCanceled re-reads the job; a cancel is honoured only between stages.
func (p *Processor) checkCanceled(ctx context.Context, id string) error {
	current, err := p.deps.Store.GetJob(ctx, id)
	if err != nil {
		return derrors.PersistenceFailed("reload job", err)
	}
	if current.Status == models.JobCanceled {
		return errCanceled
	}
	return nil
}

// save writes the job; a rejected transition means it was canceled meanwhile.
func (p *Processor) save(ctx context.Context, job *models.Job) error {
	if err := p.deps.Store.UpdateJob(ctx, job); err != nil {
		if stdErrors.Is(err, store.ErrInvalidTransition) {
			return errCanceled
		}
		return derrors.PersistenceFailed("update job", err)
	}
	return nil
}

func (p *Processor) acquire(ctx context.Context, r *run) error {
	res, err := p.deps.Source.Acquire(ctx, r.job.ID, r.job.Source)
	if err != nil {
		return err
	}
	r.localPath = res.LocalPath
	if r.job.Name == "" {
		r.job.Name = res.Name
	}
	if r.job.Source.Branch == "" {
		r.job.Source.Branch = res.Branch
	}
	r.job.Version = res.Version
	if err := p.save(ctx, r.job); err != nil {
		return err
	}

	doc, err := p.deps.Store.GetDocument(ctx, r.job.ID)
	if err != nil && !stdErrors.Is(err, store.ErrNotFound) {
		return derrors.PersistenceFailed("get document", err)
	}
	if doc == nil {
		doc = &models.DocumentRecord{JobID: r.job.ID}
	}
	doc.LocalPath = res.LocalPath
	doc.Status = r.job.Status
	r.doc = doc
	if err := p.deps.Store.UpsertDocument(ctx, doc); err != nil {
		return derrors.PersistenceFailed("upsert document", err)
	}
	return nil
}

func (p *Processor) catalogue(ctx context.Context, r *run) error {
	cc := r.cfg.Catalogue
	ignore, err := catalogue.LoadIgnoreSet(r.localPath, cc.Ignore)
	if err != nil {
		return derrors.WorkspaceError("load ignore set", err)
	}
	res, err := catalogue.NewBuilder(ignore, catalogue.Options{MaxDepth: cc.MaxDepth, MaxEntries: cc.MaxEntries}).Build(ctx, r.localPath)
	if err != nil {
		return err
	}
	text, err := catalogue.Render(res.Root, cc.Format)
	if err != nil {
		return derrors.InternalError("render catalogue", err)
	}
	summary, err := catalogue.ReadSummary(r.localPath, cc.SummaryLimit)
	if err != nil {
		observability.WarnContext(ctx, "Repository summary unavailable", logfields.Error(err))
	}

	r.known = make(map[string]bool, res.Entries)
	for _, path := range res.Root.Paths() {
		r.known[path] = true
	}
	r.shared = prompts.Shared{
		Repository: r.job.Name,
		Branch:     r.job.Source.Branch,
		Catalogue:  text,
		Summary:    summary,
		Language:   r.cfg.Generation.Language,
	}
	r.job.CatalogueText = text
	observability.InfoContext(ctx, "Catalogue built", slog.Int("entries", res.Entries),
		slog.Bool("truncated", res.Truncated), slog.Int("warnings", len(res.Warnings)))
	return p.save(ctx, r.job)
}

// ensureBackend resolves the backend and engine once per job.
func (p *Processor) ensureBackend(r *run) error {
	if r.backend != nil {
		return nil
	}
	b, err := p.deps.Backends.Get(r.cfg.LLM)
	if err != nil {
		return derrors.GenerationFailed("backend", err)
	}
	r.backend = b
	r.engine = generation.NewEngine(b, p.deps.Store, generation.SettingsFromConfig(r.cfg),
		generation.WithRecorder(p.deps.Recorder))
	return nil
}

func (p *Processor) outline(ctx context.Context, r *run) error {
	existing, err := p.deps.Store.ListCatalogueNodes(ctx, r.job.ID)
	if err != nil {
		return derrors.PersistenceFailed("list catalogue nodes", err)
	}
	if len(existing) > 0 {
		observability.InfoContext(ctx, "Outline exists, skipping planning", slog.Int("nodes", len(existing)))
		return nil
	}
	if err := p.ensureBackend(r); err != nil {
		return err
	}
	planner := outline.NewPlanner(r.backend, generation.SettingsFromConfig(r.cfg).Options)
	nodes, err := planner.Plan(ctx, r.job.ID, r.shared, r.known)
	if err != nil {
		return err
	}
	if err := p.deps.Store.InsertCatalogueNodes(ctx, r.job.ID, nodes); err != nil {
		return derrors.PersistenceFailed("insert catalogue nodes", err)
	}
	observability.InfoContext(ctx, "Outline planned", slog.Int("nodes", len(nodes)))
	return nil
}

func (p *Processor) content(ctx context.Context, r *run) error {
	nodes, err := p.deps.Store.ListCatalogueNodes(ctx, r.job.ID)
	if err != nil {
		return derrors.PersistenceFailed("list catalogue nodes", err)
	}
	cat, err := models.NewCatalogue(nodes)
	if err != nil {
		return derrors.InternalError("load catalogue", err)
	}
	pending := cat.Incomplete()
	if len(pending) == 0 {
		observability.InfoContext(ctx, "All nodes complete")
		return nil
	}
	if err := p.ensureBackend(r); err != nil {
		return err
	}
	sum, err := r.engine.Run(ctx, generation.Request{
		JobID:      r.job.ID,
		Nodes:      pending,
		Catalogue:  cat,
		Shared:     r.shared,
		KnownPaths: r.known,
	})
	if err != nil {
		return err
	}
	observability.InfoContext(ctx, "Content generated", slog.Int("nodes", sum.Completed),
		slog.Int("skipped", cat.Len()-len(pending)), slog.Int("attempts", sum.Attempts))
	return nil
}

func (p *Processor) graph(ctx context.Context, r *run) error {
	if err := p.ensureBackend(r); err != nil {
		return err
	}
	prompt, err := prompts.KnowledgeGraph(r.shared)
	if err != nil {
		return derrors.InternalError("render graph prompt", err)
	}
	out, err := r.engine.Single(ctx, prompt)
	if err != nil {
		return derrors.GenerationFailed("knowledge graph", err)
	}
	tree := knowledge.Parse(out)
	if tree == nil {
		observability.WarnContext(ctx, "Knowledge graph response contained no headings")
	}
	data, err := knowledge.Marshal(tree)
	if err != nil {
		return derrors.InternalError("encode knowledge graph", err)
	}
	r.doc.KnowledgeGraph = data
	return nil
}

func (p *Processor) overview(ctx context.Context, r *run) error {
	if err := p.ensureBackend(r); err != nil {
		return err
	}
	prompt, err := prompts.Overview(r.shared)
	if err != nil {
		return derrors.InternalError("render overview prompt", err)
	}
	out, err := r.engine.Single(ctx, prompt)
	if err != nil {
		return derrors.GenerationFailed("overview", err)
	}
	r.doc.Overview = out
	return nil
}

// finish marks the job Completed and stamps the document.
func (p *Processor) finish(ctx context.Context, r *run) error {
	r.doc.LastUpdate = p.deps.Now()
	r.doc.Status = models.JobCompleted
	r.job.Status = models.JobCompleted
	r.job.Error = ""
	if err := p.deps.Store.CompleteJob(ctx, r.job, r.doc); err != nil {
		if stdErrors.Is(err, store.ErrInvalidTransition) {
			observability.InfoContext(ctx, "Job canceled before completion")
			p.deps.Recorder.IncJobOutcome(string(models.JobCanceled))
			return nil
		}
		err = derrors.PersistenceFailed("complete job", err)
		p.fail(ctx, r.job, r.stage, err)
		return err
	}
	p.deps.Recorder.IncJobOutcome(string(models.JobCompleted))
	p.publish(ctx, r.job, "", "")
	observability.InfoContext(ctx, "Job completed", logfields.Commit(r.job.Version))
	return nil
}

// fail records a stage error on the job. Auth failures make it Unauthorized.
func (p *Processor) fail(ctx context.Context, job *models.Job, stage Stage, cause error) {
	status := models.JobFailed
	if derrors.IsCategory(cause, derrors.CategoryAuth) {
		status = models.JobUnauthorized
	}
	job.Status = status
	job.Error = cause.Error()

	if err := p.save(ctx, job); err != nil {
		if stdErrors.Is(err, errCanceled) {
			observability.InfoContext(ctx, "Job canceled while failing", logfields.Error(cause))
			return
		}
		p.deps.Recorder.IncJobRecordFailure(string(status))
		observability.ErrorContext(ctx, "Failed to record job failure; the job is resumed once its lease expires",
			logfields.Error(err), logfields.JobStatus(string(status)))
		return
	}
	p.deps.Recorder.IncJobOutcome(string(status))
	p.publish(ctx, job, string(stage), job.Error)
	observability.WarnContext(ctx, "Job failed", logfields.Stage(string(stage)), logfields.JobStatus(string(status)), logfields.Error(cause))
}

func (p *Processor) publish(ctx context.Context, job *models.Job, stage, errText string) {
	ev := notify.JobEvent{JobID: job.ID, Status: job.Status, Stage: stage, Error: errText, Time: p.deps.Now().UTC()}
	if err := p.deps.Notifier.Publish(ctx, ev); err != nil {
		observability.WarnContext(ctx, "Failed to publish job event", logfields.Error(err))
	}
}
