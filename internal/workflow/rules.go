package workflow

import (
	"fmt"
	"strings"
	"time"

	"trackline/internal/domain"
)

// Mail-merge template names the rules request. Dispatch is recorded in the
// workflow log; no actual mail leaves the system.
const (
	TemplateMailingConcept = "Mailing Konzeptblatt"
	TemplateMailingOffer   = "Mailing Angebot DUo"
)

const dueDateLayout = "2006-01-02"

// Plan is the set of changes a rule proposes for one project. Every field
// is optional; a rule may request only an audit entry.
type Plan struct {
	NextBucket domain.Bucket // zero value: bucket unchanged
	NextDue    *string       // nil: due date unchanged
	NextStatus string        // zero value: status unchanged
	Note       string        // dated line to append to the notes log
	LogAction  string        // audit entry independent of any notification
	Template   string        // notification template to dispatch
}

// IsDue reports whether a due date has been reached. Comparison is
// date-only and inclusive: a project due exactly today fires. A missing
// date is never due.
func IsDue(date *string, now time.Time) (bool, error) {
	if date == nil || *date == "" {
		return false, nil
	}
	due, err := time.Parse(dueDateLayout, *date)
	if err != nil {
		return false, fmt.Errorf("due date %q: %w", *date, err)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return !due.After(today), nil
}

// Decide evaluates the rule for the project's current bucket and returns
// the transition plan, or nil when nothing is due. Decide is pure: all
// side effects are carried in the plan. An error means the project data is
// malformed (unparseable due date) and must be treated as a per-project
// failure by the caller.
func Decide(p domain.Project, now time.Time) (*Plan, error) {
	bucket := domain.Bucket(p.Bucket)
	if !domain.KnownBucket(bucket) {
		return nil, nil
	}
	switch bucket {
	case domain.BucketPool:
		// The telemarketing send is simulated via the status field; it
		// fires even without a due date.
		due, err := IsDue(p.DueDate, now)
		if err != nil {
			return nil, err
		}
		if p.Status != domain.StatusMailingConcept && !due {
			return nil, nil
		}
		return &Plan{
			NextBucket: domain.BucketConceptSent,
			NextDue:    datePtr(now.AddDate(0, 0, 21)),
			Note:       noteLine(now, "Konzeptblatt versendet"),
			LogAction:  "Mailing Konzeptblatt gesendet",
			Template:   TemplateMailingConcept,
		}, nil

	case domain.BucketConceptSent:
		return dueReminder(p, now, domain.BucketConceptReminderA, "Erinnerung Konzeptblatt A", TemplateMailingConcept)

	case domain.BucketConceptReminderA:
		return dueReminder(p, now, domain.BucketConceptReminderB, "Erinnerung Konzeptblatt B", TemplateMailingConcept)

	case domain.BucketConceptReminderB:
		due, err := IsDue(p.DueDate, now)
		if err != nil || !due {
			return nil, err
		}
		// The stale due date is kept on purpose; the feedback rule picks
		// the project up on the next run.
		return &Plan{NextBucket: domain.BucketAwaitFeedback}, nil

	case domain.BucketAwaitFeedback:
		due, err := IsDue(p.DueDate, now)
		if err != nil || !due {
			return nil, err
		}
		if strings.EqualFold(p.Status, domain.StatusPositive) {
			return &Plan{LogAction: "Positives Feedback - TM informiert"}, nil
		}
		return &Plan{
			NextStatus: domain.StatusDone,
			LogAction:  "Projekt geschlossen mangels Feedback",
		}, nil

	case domain.BucketPrepareOffer:
		// Status-only trigger, no date check.
		if !strings.EqualFold(p.Status, domain.StatusConceptReceived) {
			return nil, nil
		}
		return &Plan{
			NextBucket: domain.BucketOfferSent,
			NextDue:    datePtr(now.AddDate(0, 0, 14)),
			Note:       noteLine(now, "Angebot gesendet"),
			Template:   TemplateMailingOffer,
		}, nil

	case domain.BucketOfferSent:
		return dueReminder(p, now, domain.BucketOfferReminderA, "Erinnerung Angebot A", TemplateMailingOffer)

	case domain.BucketOfferReminderA:
		return dueReminder(p, now, domain.BucketOfferReminderB, "Erinnerung Angebot B", TemplateMailingOffer)

	case domain.BucketOfferReminderB:
		due, err := IsDue(p.DueDate, now)
		if err != nil || !due {
			return nil, err
		}
		return &Plan{NextBucket: domain.BucketAwaitFeedback}, nil

	case domain.BucketInProgress:
		if !strings.EqualFold(p.Status, domain.StatusDuoIntroduced) || p.DueDate == nil || *p.DueDate == "" {
			return nil, nil
		}
		due, err := time.Parse(dueDateLayout, *p.DueDate)
		if err != nil {
			return nil, fmt.Errorf("due date %q: %w", *p.DueDate, err)
		}
		return &Plan{
			NextBucket: domain.BucketFollowUp,
			NextDue:    datePtr(due.AddDate(0, 0, 14)),
		}, nil

	case domain.BucketFollowUp:
		if !strings.EqualFold(p.Status, domain.StatusInvoiced) {
			return nil, nil
		}
		return &Plan{NextStatus: domain.StatusDone}, nil

	case domain.BucketPreparation, domain.BucketFeedbackPositive:
		// Manual stages; progression is up to the operators.
		return nil, nil
	}
	return nil, nil
}

// dueReminder covers the four reminder hops, which differ only in target
// bucket, note text and template.
func dueReminder(p domain.Project, now time.Time, next domain.Bucket, note, template string) (*Plan, error) {
	due, err := IsDue(p.DueDate, now)
	if err != nil || !due {
		return nil, err
	}
	return &Plan{
		NextBucket: next,
		NextDue:    datePtr(now.AddDate(0, 0, 14)),
		Note:       noteLine(now, note),
		Template:   template,
	}, nil
}

// noteLine formats the dated note appended on bucket changes, e.g.
// "04.03.25 - Erinnerung Konzeptblatt A".
func noteLine(now time.Time, text string) string {
	return now.Format("02.01.06") + " - " + text
}

// AppendNote adds a line to the newline-delimited notes log. Notes are
// only ever appended, never truncated or reordered.
func AppendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

func datePtr(t time.Time) *string {
	s := t.Format(dueDateLayout)
	return &s
}
