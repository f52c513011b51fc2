package workflow

import (
	"testing"
	"time"

	"trackline/internal/domain"
)

var testNow = time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func project(bucket domain.Bucket, status string, due *string) domain.Project {
	return domain.Project{
		ID:        "p-1",
		Title:     "Kanzlei Nord",
		Bucket:    string(bucket),
		Status:    status,
		DueDate:   due,
		UpdatedAt: "2025-03-01T00:00:00Z",
	}
}

func TestIsDue(t *testing.T) {
	cases := []struct {
		name string
		date *string
		want bool
	}{
		{"nil date", nil, false},
		{"empty date", strPtr(""), false},
		{"past", strPtr("2025-03-01"), true},
		{"today inclusive", strPtr("2025-03-04"), true},
		{"tomorrow", strPtr("2025-03-05"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := IsDue(tc.date, testNow)
			if err != nil {
				t.Fatalf("IsDue: %v", err)
			}
			if got != tc.want {
				t.Fatalf("IsDue = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsDueMalformed(t *testing.T) {
	if _, err := IsDue(strPtr("04.03.2025"), testNow); err == nil {
		t.Fatal("expected parse error for non ISO date")
	}
}

func TestDecidePoolStatusTriggerWithoutDueDate(t *testing.T) {
	p := project(domain.BucketPool, domain.StatusMailingConcept, nil)
	plan, err := Decide(p, testNow)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if plan == nil {
		t.Fatal("expected a plan, got nil")
	}
	if plan.NextBucket != domain.BucketConceptSent {
		t.Fatalf("next bucket = %q", plan.NextBucket)
	}
	if plan.NextDue == nil || *plan.NextDue != "2025-03-25" {
		t.Fatalf("next due = %v, want 2025-03-25", plan.NextDue)
	}
	if plan.Note != "04.03.25 - Konzeptblatt versendet" {
		t.Fatalf("note = %q", plan.Note)
	}
	if plan.LogAction != "Mailing Konzeptblatt gesendet" {
		t.Fatalf("log action = %q", plan.LogAction)
	}
	if plan.Template != TemplateMailingConcept {
		t.Fatalf("template = %q", plan.Template)
	}
}

func TestDecidePoolDueDateTrigger(t *testing.T) {
	p := project(domain.BucketPool, "irgendwas", strPtr("2025-03-04"))
	plan, err := Decide(p, testNow)
	if err != nil || plan == nil {
		t.Fatalf("plan = %v, err = %v", plan, err)
	}
	if plan.NextBucket != domain.BucketConceptSent {
		t.Fatalf("next bucket = %q", plan.NextBucket)
	}
}

func TestDecidePoolNotDue(t *testing.T) {
	p := project(domain.BucketPool, "irgendwas", strPtr("2025-04-01"))
	plan, err := Decide(p, testNow)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if plan != nil {
		t.Fatalf("expected no plan, got %+v", plan)
	}
}

func TestDecideReminderChain(t *testing.T) {
	cases := []struct {
		bucket   domain.Bucket
		next     domain.Bucket
		note     string
		template string
	}{
		{domain.BucketConceptSent, domain.BucketConceptReminderA, "04.03.25 - Erinnerung Konzeptblatt A", TemplateMailingConcept},
		{domain.BucketConceptReminderA, domain.BucketConceptReminderB, "04.03.25 - Erinnerung Konzeptblatt B", TemplateMailingConcept},
		{domain.BucketOfferSent, domain.BucketOfferReminderA, "04.03.25 - Erinnerung Angebot A", TemplateMailingOffer},
		{domain.BucketOfferReminderA, domain.BucketOfferReminderB, "04.03.25 - Erinnerung Angebot B", TemplateMailingOffer},
	}
	for _, tc := range cases {
		t.Run(string(tc.bucket), func(t *testing.T) {
			p := project(tc.bucket, "", strPtr("2025-03-03"))
			plan, err := Decide(p, testNow)
			if err != nil || plan == nil {
				t.Fatalf("plan = %v, err = %v", plan, err)
			}
			if plan.NextBucket != tc.next {
				t.Fatalf("next bucket = %q, want %q", plan.NextBucket, tc.next)
			}
			if plan.NextDue == nil || *plan.NextDue != "2025-03-18" {
				t.Fatalf("next due = %v, want 2025-03-18", plan.NextDue)
			}
			if plan.Note != tc.note {
				t.Fatalf("note = %q, want %q", plan.Note, tc.note)
			}
			if plan.Template != tc.template {
				t.Fatalf("template = %q, want %q", plan.Template, tc.template)
			}
			if plan.LogAction != "" {
				t.Fatalf("unexpected log action %q", plan.LogAction)
			}
		})
	}
}

func TestDecideReminderBKeepsDueDate(t *testing.T) {
	for _, bucket := range []domain.Bucket{domain.BucketConceptReminderB, domain.BucketOfferReminderB} {
		t.Run(string(bucket), func(t *testing.T) {
			p := project(bucket, "", strPtr("2025-03-01"))
			plan, err := Decide(p, testNow)
			if err != nil || plan == nil {
				t.Fatalf("plan = %v, err = %v", plan, err)
			}
			if plan.NextBucket != domain.BucketAwaitFeedback {
				t.Fatalf("next bucket = %q", plan.NextBucket)
			}
			if plan.NextDue != nil {
				t.Fatalf("due date should stay unchanged, got %q", *plan.NextDue)
			}
			if plan.Note != "" || plan.Template != "" {
				t.Fatalf("unexpected note/template: %q %q", plan.Note, plan.Template)
			}
		})
	}
}

func TestDecideAwaitFeedback(t *testing.T) {
	// The stale due date from the B reminder makes the project due on the
	// very next run.
	for _, status := range []string{"positiv", "POSITIV", "Positiv"} {
		p := project(domain.BucketAwaitFeedback, status, strPtr("2025-03-01"))
		plan, err := Decide(p, testNow)
		if err != nil || plan == nil {
			t.Fatalf("status %q: plan = %v, err = %v", status, plan, err)
		}
		if plan.NextBucket != "" || plan.NextStatus != "" {
			t.Fatalf("status %q: positive feedback must not move the project", status)
		}
		if plan.LogAction != "Positives Feedback - TM informiert" {
			t.Fatalf("status %q: log action = %q", status, plan.LogAction)
		}
	}

	p := project(domain.BucketAwaitFeedback, "keine antwort", strPtr("2025-03-01"))
	plan, err := Decide(p, testNow)
	if err != nil || plan == nil {
		t.Fatalf("plan = %v, err = %v", plan, err)
	}
	if plan.NextStatus != domain.StatusDone {
		t.Fatalf("next status = %q, want %q", plan.NextStatus, domain.StatusDone)
	}
	if plan.LogAction != "Projekt geschlossen mangels Feedback" {
		t.Fatalf("log action = %q", plan.LogAction)
	}
	if plan.NextBucket != "" {
		t.Fatalf("closing must not move the project, got %q", plan.NextBucket)
	}
}

func TestDecideAwaitFeedbackNotDue(t *testing.T) {
	p := project(domain.BucketAwaitFeedback, "positiv", strPtr("2025-04-01"))
	plan, err := Decide(p, testNow)
	if err != nil || plan != nil {
		t.Fatalf("expected no plan before the due date, got %v, err %v", plan, err)
	}
}

func TestDecidePrepareOffer(t *testing.T) {
	for _, status := range []string{"konzeptblatt erhalten", "Konzeptblatt Erhalten"} {
		p := project(domain.BucketPrepareOffer, status, nil)
		plan, err := Decide(p, testNow)
		if err != nil || plan == nil {
			t.Fatalf("status %q: plan = %v, err = %v", status, plan, err)
		}
		if plan.NextBucket != domain.BucketOfferSent {
			t.Fatalf("next bucket = %q", plan.NextBucket)
		}
		if plan.NextDue == nil || *plan.NextDue != "2025-03-18" {
			t.Fatalf("next due = %v, want 2025-03-18", plan.NextDue)
		}
		if plan.Note != "04.03.25 - Angebot gesendet" {
			t.Fatalf("note = %q", plan.Note)
		}
		if plan.Template != TemplateMailingOffer {
			t.Fatalf("template = %q", plan.Template)
		}
	}

	p := project(domain.BucketPrepareOffer, "in arbeit", strPtr("2025-03-01"))
	plan, err := Decide(p, testNow)
	if err != nil || plan != nil {
		t.Fatalf("status gate must ignore the due date, got %v, err %v", plan, err)
	}
}

func TestDecideInProgress(t *testing.T) {
	p := project(domain.BucketInProgress, "duo eingeführt", strPtr("2025-02-10"))
	plan, err := Decide(p, testNow)
	if err != nil || plan == nil {
		t.Fatalf("plan = %v, err = %v", plan, err)
	}
	if plan.NextBucket != domain.BucketFollowUp {
		t.Fatalf("next bucket = %q", plan.NextBucket)
	}
	// Follow-up window counts from the existing due date, not from today.
	if plan.NextDue == nil || *plan.NextDue != "2025-02-24" {
		t.Fatalf("next due = %v, want 2025-02-24", plan.NextDue)
	}

	// No due date means no hand-off.
	p = project(domain.BucketInProgress, "duo eingeführt", nil)
	if plan, err := Decide(p, testNow); err != nil || plan != nil {
		t.Fatalf("expected no plan without a due date, got %v, err %v", plan, err)
	}
}

func TestDecideFollowUp(t *testing.T) {
	p := project(domain.BucketFollowUp, "abgerechnet", nil)
	plan, err := Decide(p, testNow)
	if err != nil || plan == nil {
		t.Fatalf("plan = %v, err = %v", plan, err)
	}
	if plan.NextStatus != domain.StatusDone {
		t.Fatalf("next status = %q", plan.NextStatus)
	}
	if plan.NextBucket != "" {
		t.Fatalf("project must stay in its bucket, got %q", plan.NextBucket)
	}

	p = project(domain.BucketFollowUp, "offen", strPtr("2025-01-01"))
	if plan, err := Decide(p, testNow); err != nil || plan != nil {
		t.Fatalf("expected no plan, got %v, err %v", plan, err)
	}
}

func TestDecideManualStages(t *testing.T) {
	for _, bucket := range []domain.Bucket{domain.BucketPreparation, domain.BucketFeedbackPositive} {
		p := project(bucket, "irgendwas", strPtr("2025-01-01"))
		if plan, err := Decide(p, testNow); err != nil || plan != nil {
			t.Fatalf("%s: expected no plan, got %v, err %v", bucket, plan, err)
		}
	}
}

func TestDecideUnknownBucket(t *testing.T) {
	p := project("Irgendein Eimer", "", strPtr("2025-01-01"))
	if plan, err := Decide(p, testNow); err != nil || plan != nil {
		t.Fatalf("unknown bucket must be ignored, got %v, err %v", plan, err)
	}
}

func TestDecideMalformedDueDate(t *testing.T) {
	p := project(domain.BucketConceptSent, "", strPtr("not-a-date"))
	if _, err := Decide(p, testNow); err == nil {
		t.Fatal("expected error for malformed due date")
	}
}

func TestDecideIdempotentWithinADay(t *testing.T) {
	// After a transition the project is parked two or three weeks out, so a
	// second run on the same day finds nothing to do.
	p := project(domain.BucketConceptSent, "", strPtr("2025-03-03"))
	plan, err := Decide(p, testNow)
	if err != nil || plan == nil {
		t.Fatalf("first run: plan = %v, err = %v", plan, err)
	}
	p.Bucket = string(plan.NextBucket)
	p.DueDate = plan.NextDue
	if plan, err := Decide(p, testNow); err != nil || plan != nil {
		t.Fatalf("second run must be a no-op, got %v, err %v", plan, err)
	}
}

func TestAppendNote(t *testing.T) {
	if got := AppendNote("", "04.03.25 - Angebot gesendet"); got != "04.03.25 - Angebot gesendet" {
		t.Fatalf("empty notes: %q", got)
	}
	got := AppendNote("01.02.25 - Konzeptblatt versendet", "04.03.25 - Erinnerung Konzeptblatt A")
	want := "01.02.25 - Konzeptblatt versendet\n04.03.25 - Erinnerung Konzeptblatt A"
	if got != want {
		t.Fatalf("append = %q, want %q", got, want)
	}
}
