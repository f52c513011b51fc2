package domain

import "testing"

func TestParseBucket(t *testing.T) {
	if got := ParseBucket("Angebot gesendet"); got != BucketOfferSent {
		t.Fatalf("got %q", got)
	}
	// Unknown buckets fall back to the first stage.
	if got := ParseBucket("Sonstiges"); got != BucketPool {
		t.Fatalf("got %q", got)
	}
	if got := ParseBucket(""); got != BucketPool {
		t.Fatalf("got %q", got)
	}
}

func TestBucketsOrderAndCount(t *testing.T) {
	if len(Buckets) != 13 {
		t.Fatalf("buckets = %d, want 13", len(Buckets))
	}
	if Buckets[0] != BucketPool || Buckets[len(Buckets)-1] != BucketFeedbackPositive {
		t.Fatalf("board order wrong: first %q last %q", Buckets[0], Buckets[len(Buckets)-1])
	}
	seen := map[Bucket]bool{}
	for _, b := range Buckets {
		if seen[b] {
			t.Fatalf("duplicate bucket %q", b)
		}
		seen[b] = true
	}
}

func TestProjectOpen(t *testing.T) {
	p := Project{Status: "positiv"}
	if !p.Open() {
		t.Fatal("non terminal status must be open")
	}
	p.Status = StatusDone
	if p.Open() {
		t.Fatal("erledigt must be terminal")
	}
}
