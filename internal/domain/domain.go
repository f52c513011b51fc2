package domain

// Bucket is a named stage of the client-engagement pipeline. The set is
// closed: the board renders exactly these columns, in this order.
type Bucket string

const (
	BucketPool             Bucket = "Pool"
	BucketConceptSent      Bucket = "Konzeptblatt gesendet"
	BucketConceptReminderA Bucket = "A Erinnerung Konzeptblatt gesendet"
	BucketConceptReminderB Bucket = "B Erinnerung Konzeptblatt gesendet"
	BucketAwaitFeedback    Bucket = "Feedback Kanzlei abwarten"
	BucketPrepareOffer     Bucket = "Angebot erstellen"
	BucketOfferSent        Bucket = "Angebot gesendet"
	BucketOfferReminderA   Bucket = "A Erinnerung Angebot gesendet"
	BucketOfferReminderB   Bucket = "B Erinnerung Angebot gesendet"
	BucketPreparation      Bucket = "Projekt in Vorbereitung"
	BucketInProgress       Bucket = "Projekt in Bearbeitung"
	BucketFollowUp         Bucket = "Projekt in Nacharbeitung"
	BucketFeedbackPositive Bucket = "Feedback Kanzlei positiv"
)

// Buckets lists every pipeline stage in board order.
var Buckets = []Bucket{
	BucketPool,
	BucketConceptSent,
	BucketConceptReminderA,
	BucketConceptReminderB,
	BucketAwaitFeedback,
	BucketPrepareOffer,
	BucketOfferSent,
	BucketOfferReminderA,
	BucketOfferReminderB,
	BucketPreparation,
	BucketInProgress,
	BucketFollowUp,
	BucketFeedbackPositive,
}

// KnownBucket reports whether b is one of the board stages.
func KnownBucket(b Bucket) bool {
	for _, known := range Buckets {
		if b == known {
			return true
		}
	}
	return false
}

// ParseBucket maps a raw bucket string onto the closed set. Unknown values
// fall back to the first pipeline stage, matching how the board renders
// projects with a stale bucket.
func ParseBucket(raw string) Bucket {
	b := Bucket(raw)
	if KnownBucket(b) {
		return b
	}
	return Buckets[0]
}

// Status values the automaton reads or writes. Status is otherwise free
// text entered by users.
const (
	StatusDone            = "erledigt"
	StatusMailingConcept  = "Mailing Konzeptblatt"
	StatusPositive        = "positiv"
	StatusConceptReceived = "konzeptblatt erhalten"
	StatusDuoIntroduced   = "duo eingeführt"
	StatusInvoiced        = "abgerechnet"
)

type Project struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	LawFirmID     *string `json:"law_firm_id,omitempty"`
	ProjectType   *string `json:"project_type,omitempty" enum:"Selbstbucher,Auftragsbuchhaltung"`
	Bucket        string  `json:"bucket"`
	Status        string  `json:"status"`
	Priority      string  `json:"priority,omitempty"`
	StartDate     *string `json:"start_date,omitempty" format:"date"`
	DueDate       *string `json:"due_date,omitempty" format:"date"`
	Notes         string  `json:"notes,omitempty"`
	MetadataJSON  string  `json:"metadata_json,omitempty"`
	ChecklistJSON string  `json:"checklist_json,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

// Open reports whether the automaton still governs the project.
func (p Project) Open() bool {
	return p.Status != StatusDone
}

type LawFirm struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	GeneralInfo   string `json:"general_info,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Clerk struct {
	ID        string `json:"id"`
	LawFirmID string `json:"law_firm_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
}

// AuditEntry is one immutable workflow log record. Notification dispatches
// are recorded here too; the entry is the dispatch record of truth.
type AuditEntry struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Action      string `json:"action"`
	DetailsJSON string `json:"details_json,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	AuthorID  string `json:"author_id,omitempty"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// FirmSummary aggregates projects per law firm for the dashboard.
type FirmSummary struct {
	LawFirmID    string `json:"law_firm_id"`
	LawFirmName  string `json:"law_firm_name"`
	ProjectCount int    `json:"project_count"`
	OpenCount    int    `json:"open_count"`
}
