package workflow

import (
	"context"
	"fmt"
	"sync"

	"trackline/internal/domain"
)

type NotificationOutcome string

const (
	NotificationSent    NotificationOutcome = "sent"
	NotificationSkipped NotificationOutcome = "skipped"
)

// NotificationDispatcher models the mail-merge step. Resolving a template
// and writing the audit entry is the dispatch; no mail is sent here. A
// missing template is a defined skip, not an error.
type NotificationDispatcher struct {
	Templates TemplateStore
	Audit     AuditSink
}

func (d *NotificationDispatcher) Dispatch(ctx context.Context, projectID, templateName string) (NotificationOutcome, error) {
	tpl, err := d.Templates.TemplateByName(ctx, templateName)
	if err != nil {
		return "", fmt.Errorf("resolve template %q: %w", templateName, err)
	}
	if tpl == nil {
		return NotificationSkipped, nil
	}
	details := map[string]any{"template_name": tpl.Name}
	if err := d.Audit.Append(ctx, projectID, fmt.Sprintf("Email %s versendet", tpl.Name), details); err != nil {
		return "", fmt.Errorf("record dispatch: %w", err)
	}
	return NotificationSent, nil
}

// templateCache memoizes lookups for the duration of one run. Templates
// are read-only during a run, and the same one or two names repeat across
// the whole batch.
type templateCache struct {
	store TemplateStore
	mu    sync.Mutex
	seen  map[string]*domain.Template
}

func newTemplateCache(store TemplateStore) *templateCache {
	return &templateCache{store: store, seen: make(map[string]*domain.Template)}
}

func (c *templateCache) TemplateByName(ctx context.Context, name string) (*domain.Template, error) {
	c.mu.Lock()
	tpl, ok := c.seen[name]
	c.mu.Unlock()
	if ok {
		return tpl, nil
	}
	tpl, err := c.store.TemplateByName(ctx, name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.seen[name] = tpl
	c.mu.Unlock()
	return tpl, nil
}
