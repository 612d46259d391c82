// Package service runs culling jobs for the CLI and the HTTP server. A job
// is either orchestrated (provider selection plus credit metering) or fast
// (every image retried independently against one provider).
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CodexForgeBR/cull-engine/internal/ai"
	"github.com/CodexForgeBR/cull-engine/internal/credits"
	"github.com/CodexForgeBR/cull-engine/internal/fastmode"
	"github.com/CodexForgeBR/cull-engine/internal/logging"
	"github.com/CodexForgeBR/cull-engine/internal/notification"
	"github.com/CodexForgeBR/cull-engine/internal/orchestrator"
	"github.com/CodexForgeBR/cull-engine/internal/runfile"
)

// Job modes.
const (
	ModeRun  = "run"
	ModeFast = "fast"
)

// Job states.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

var (
	// ErrUnknownMode is returned for jobs whose mode is neither run nor fast.
	ErrUnknownMode = errors.New("unknown job mode")
	// ErrDuplicateJob is returned by Submit for an id that is already tracked.
	ErrDuplicateJob = errors.New("job id already in use")
)

// Job is one culling request.
type Job struct {
	ID              string                             `json:"id,omitempty"`
	Mode            string                             `json:"mode"`
	UserID          string                             `json:"userId"`
	ShootID         string                             `json:"shootId,omitempty"`
	Prompt          string                             `json:"prompt"`
	SystemPrompt    string                             `json:"systemPrompt,omitempty"`
	Provider        string                             `json:"provider,omitempty"`
	ProviderOrder   []string                           `json:"providers,omitempty"`
	AllowFallback   bool                               `json:"allowFallback,omitempty"`
	ProviderOptions map[string]orchestrator.RunOptions `json:"providerOptions,omitempty"`
	Images          []ai.Image                         `json:"images"`
}

// Validate checks the fields every job needs.
func (j *Job) Validate() error {
	switch j.Mode {
	case ModeRun:
	case ModeFast:
		if j.Provider == "" {
			return fmt.Errorf("fast job needs a provider")
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownMode, j.Mode)
	}
	if j.UserID == "" {
		return fmt.Errorf("job needs a user id")
	}
	if j.Prompt == "" {
		return fmt.Errorf("job needs a prompt")
	}
	if len(j.Images) == 0 {
		return fmt.Errorf("job has no images")
	}
	return nil
}

func (j *Job) shootID() string {
	if j.ShootID != "" {
		return j.ShootID
	}
	return j.ID
}

// AdapterFunc resolves the fast-mode adapter for a provider.
type AdapterFunc func(providerID string) (ai.Adapter, error)

// Deps are the collaborators a Service runs jobs with.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Credits      credits.Store
	Fast         *fastmode.Engine
	Adapter      AdapterFunc
	// Notifier receives the final status of every job. May be nil.
	Notifier notification.Notifier
}

// JobStatus is the tracked state of a submitted job.
type JobStatus struct {
	ID     string          `json:"id"`
	State  string          `json:"state"`
	Report *runfile.Report `json:"report,omitempty"`
}

// Service executes jobs and remembers their outcome. Safe for concurrent use.
type Service struct {
	deps  Deps
	log   *logging.Logger
	now   func() time.Time
	newID func() string

	mu   sync.RWMutex
	jobs map[string]*JobStatus
}

// New returns a service over deps.
func New(deps Deps) *Service {
	return &Service{
		deps:  deps,
		log:   logging.New("service"),
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
		jobs:  make(map[string]*JobStatus),
	}
}

// Execute runs job to completion and returns its report. The report is
// returned even when err is non-nil, with Error set.
func (s *Service) Execute(ctx context.Context, job Job) (*runfile.Report, error) {
	if job.ID == "" {
		job.ID = s.newID()
	}
	report := &runfile.Report{
		JobID:     job.ID,
		UserID:    job.UserID,
		ShootID:   job.ShootID,
		Mode:      job.Mode,
		StartedAt: s.now(),
	}
	s.track(job.ID, StateRunning, nil)

	err := job.Validate()
	if err == nil {
		switch job.Mode {
		case ModeRun:
			err = s.executeRun(ctx, job, report)
		case ModeFast:
			err = s.executeFast(ctx, job, report)
		}
	}

	report.FinishedAt = s.now()
	state := StateCompleted
	if err != nil {
		state = StateFailed
		report.Error = err.Error()
	}
	s.track(job.ID, state, report)
	s.notifyDone(job, report, err)
	return report, err
}

func (s *Service) executeRun(ctx context.Context, job Job, report *runfile.Report) error {
	if s.deps.Orchestrator == nil || s.deps.Credits == nil {
		return fmt.Errorf("orchestrated jobs are not configured")
	}
	res, err := s.deps.Orchestrator.Run(ctx, s.deps.Credits, orchestrator.Request{
		UserID:          job.UserID,
		Prompt:          job.Prompt,
		Images:          job.Images,
		ProviderOrder:   job.ProviderOrder,
		AllowFallback:   job.AllowFallback,
		ProviderOptions: job.ProviderOptions,
	})
	if err != nil {
		var all *orchestrator.AllProvidersFailedError
		if errors.As(err, &all) {
			report.Attempts = all.Attempts
		}
		return err
	}
	report.Run = &res
	report.Attempts = res.Attempts
	return nil
}

func (s *Service) executeFast(ctx context.Context, job Job, report *runfile.Report) error {
	if s.deps.Fast == nil || s.deps.Adapter == nil {
		return fmt.Errorf("fast jobs are not configured")
	}
	adapter, err := s.deps.Adapter(job.Provider)
	if err != nil {
		return fmt.Errorf("provider %s: %w", job.Provider, err)
	}
	results, err := s.deps.Fast.ProcessConcurrent(ctx, job.UserID, job.shootID(), job.Images, adapter, job.Prompt, job.SystemPrompt)
	if err != nil {
		return err
	}
	report.Items = results
	return nil
}

func (s *Service) notifyDone(job Job, report *runfile.Report, err error) {
	total := len(job.Images)
	succeeded, provider := 0, job.Provider
	switch {
	case report.Run != nil:
		succeeded, provider = len(report.Run.Ratings), report.Run.ProviderID
	case report.Items != nil:
		succeeded = report.Succeeded()
	}

	status := notification.StatusCompleted
	if err != nil || succeeded < total {
		status = notification.StatusFailed
	}
	s.log.Info("%s", notification.FormatSummary(status, job.shootID(), succeeded, total, provider))

	if s.deps.Notifier == nil || job.UserID == "" {
		return
	}
	s.deps.Notifier.BroadcastToUser(job.UserID, notification.NewShootProgress(
		job.UserID, job.shootID(), provider, status, succeeded, total, s.now()))
}

func (s *Service) track(id, state string, report *runfile.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &JobStatus{ID: id, State: state, Report: report}
}

// Status returns the tracked state of a job.
func (s *Service) Status(id string) (JobStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return *st, true
}

// Jobs lists tracked jobs ordered by id. Ids are time-ordered UUIDs, so
// this is submission order.
func (s *Service) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, JobStatus{ID: st.ID, State: st.State})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Submit assigns an id if job has none, starts job in the background and
// returns the id. Ids already tracked are rejected with ErrDuplicateJob.
// The job runs under ctx, not under the caller's request context.
func (s *Service) Submit(ctx context.Context, job Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	if job.ID == "" {
		job.ID = s.newID()
	}

	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	s.jobs[job.ID] = &JobStatus{ID: job.ID, State: StateRunning}
	s.mu.Unlock()

	go func() {
		if _, err := s.Execute(ctx, job); err != nil {
			s.log.Warn("job %s failed: %v", job.ID, err)
		}
	}()
	return job.ID, nil
}
