package workflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"trackline/internal/domain"
)

// ProjectUpdate is a partial update; only non-nil fields are written.
type ProjectUpdate struct {
	Bucket  *string
	Status  *string
	DueDate *string
	Notes   *string
}

// ProjectStore is the narrow slice of the repository the automaton needs.
type ProjectStore interface {
	// ListOpenProjects returns every project not yet terminal
	// (status != "erledigt"), including those without a due date, so
	// that status-only rules are evaluated by the periodic run.
	ListOpenProjects(ctx context.Context) ([]domain.Project, error)
	// UpdateProject applies a partial update guarded by a
	// compare-and-swap on updated_at. A stale token yields
	// ErrConflict from the store.
	UpdateProject(ctx context.Context, id string, update ProjectUpdate, expectedUpdatedAt string) error
}

// TemplateStore resolves notification templates by exact name. A miss is
// reported as (nil, nil), not an error.
type TemplateStore interface {
	TemplateByName(ctx context.Context, name string) (*domain.Template, error)
}

// AuditSink appends immutable workflow log entries.
type AuditSink interface {
	Append(ctx context.Context, projectID, action string, details map[string]any) error
}

// RunSummary reports the outcome of one automaton run.
type RunSummary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Result classifies the run for operators: "ok", "no_due_work" or
// "partial_failure". A run that could not fetch candidates at all is an
// error from RunOnce instead.
func (s RunSummary) Result() string {
	switch {
	case s.Failed > 0:
		return "partial_failure"
	case s.Processed == 0:
		return "no_due_work"
	default:
		return "ok"
	}
}

// Runner coordinates one automaton invocation. It is triggered externally
// (CLI or HTTP); there is no internal timer.
type Runner struct {
	Projects  ProjectStore
	Templates TemplateStore
	Audit     AuditSink
	// Now injects the clock so rule evaluation stays deterministic.
	Now func() time.Time
	// ProjectTimeout bounds the repository work for a single project so
	// one slow record cannot stall the batch. Zero disables it.
	ProjectTimeout time.Duration
	Logger         *log.Logger
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

// RunOnce performs one full pass over the candidate projects, applying at
// most one transition per project. Failures are isolated per project; only
// a failed candidate fetch aborts the run. Cancellation is honored between
// projects.
func (r *Runner) RunOnce(ctx context.Context) (RunSummary, error) {
	now := r.now()
	projects, err := r.Projects.ListOpenProjects(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("fetch candidates: %w", err)
	}
	notifier := &NotificationDispatcher{
		Templates: newTemplateCache(r.Templates),
		Audit:     r.Audit,
	}
	var sum RunSummary
	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		switch r.processProject(ctx, notifier, p, now) {
		case outcomeAdvanced:
			sum.Processed++
		case outcomeSkipped:
			sum.Skipped++
		case outcomeFailed:
			sum.Failed++
		}
	}
	return sum, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeAdvanced
	outcomeFailed
)

func (r *Runner) processProject(ctx context.Context, notifier *NotificationDispatcher, p domain.Project, now time.Time) outcome {
	plan, err := Decide(p, now)
	if err != nil {
		r.logger().Printf("automaton: project %s: %v", p.ID, err)
		return outcomeFailed
	}
	if plan == nil {
		return outcomeSkipped
	}
	if r.ProjectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.ProjectTimeout)
		defer cancel()
	}
	if update, dirty := planUpdate(p, plan); dirty {
		if err := r.Projects.UpdateProject(ctx, p.ID, update, p.UpdatedAt); err != nil {
			r.logger().Printf("automaton: update project %s: %v", p.ID, err)
			return outcomeFailed
		}
	}
	if plan.LogAction != "" {
		if err := r.Audit.Append(ctx, p.ID, plan.LogAction, nil); err != nil {
			r.logger().Printf("automaton: log action for project %s: %v", p.ID, err)
			return outcomeFailed
		}
	}
	if plan.Template != "" {
		if _, err := notifier.Dispatch(ctx, p.ID, plan.Template); err != nil {
			r.logger().Printf("automaton: notify project %s: %v", p.ID, err)
			return outcomeFailed
		}
	}
	return outcomeAdvanced
}

// planUpdate turns a plan into the partial update to persist. The second
// return is false when the plan carries no field changes (audit-only rule).
func planUpdate(p domain.Project, plan *Plan) (ProjectUpdate, bool) {
	var update ProjectUpdate
	dirty := false
	if plan.NextBucket != "" {
		b := string(plan.NextBucket)
		update.Bucket = &b
		dirty = true
	}
	if plan.NextStatus != "" {
		s := plan.NextStatus
		update.Status = &s
		dirty = true
	}
	if plan.NextDue != nil {
		update.DueDate = plan.NextDue
		dirty = true
	}
	if plan.Note != "" {
		notes := AppendNote(p.Notes, plan.Note)
		update.Notes = &notes
		dirty = true
	}
	return update, dirty
}
