// Package progress holds per-item review statistics and the rules that mutate
// them after each review.
package progress

import (
	"sort"
	"time"
)

const (
	// MaxIntervalDays caps the exponential interval growth.
	MaxIntervalDays = 90
	// MinIntervalDays is the interval of a new or lapsed item.
	MinIntervalDays = 1

	// MasteryMinSeen is the minimum number of reviews before an item can be mastered.
	MasteryMinSeen = 10
	// MasteryMinAccuracy is the minimum correct/seen ratio for mastery.
	MasteryMinAccuracy = 0.80
)

// ReviewRecord holds the review history of one item.
type ReviewRecord struct {
	TimesCorrect   int        `json:"times_correct"`
	TimesSeen      int        `json:"times_seen"`
	IntervalDays   int        `json:"interval_days"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
}

// DefaultRecord is the record of an item that has never been reviewed.
func DefaultRecord() ReviewRecord {
	return ReviewRecord{IntervalDays: MinIntervalDays}
}

// Accuracy returns TimesCorrect/TimesSeen, or 0 for an unseen item.
func (r ReviewRecord) Accuracy() float64 {
	if r.TimesSeen <= 0 {
		return 0
	}
	return float64(r.TimesCorrect) / float64(r.TimesSeen)
}

// Snapshot is the persisted shape of a Store.
type Snapshot struct {
	Records  map[string]ReviewRecord `json:"records"`
	Mastered []string                `json:"mastered"`
}

// Store owns the ReviewRecord and mastery collections, keyed by item ID.
// It is not safe for concurrent use; callers serialize access.
type Store struct {
	records  map[string]ReviewRecord
	mastered map[string]struct{}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		records:  make(map[string]ReviewRecord),
		mastered: make(map[string]struct{}),
	}
}

// Restore rebuilds a Store from a snapshot. Records that violate the
// invariants (for example hand-edited files) are repaired rather than rejected.
func Restore(snap Snapshot) *Store {
	s := NewStore()
	for id, rec := range snap.Records {
		s.records[id] = normalize(rec)
	}
	for _, id := range snap.Mastered {
		s.mastered[id] = struct{}{}
	}
	return s
}

// Record returns the stored record for itemID, or DefaultRecord for unknown items.
func (s *Store) Record(itemID string) ReviewRecord {
	rec, ok := s.records[itemID]
	if !ok {
		return DefaultRecord()
	}
	return rec
}

// ApplyReview records one review of itemID and returns the updated record.
// A rating of Good or Easy doubles the interval up to MaxIntervalDays and
// counts as correct; Again or Hard resets the interval to one day.
func (s *Store) ApplyReview(itemID string, rating Rating, now time.Time) ReviewRecord {
	rating = ClampRating(int(rating))
	rec := s.Record(itemID)

	rec.TimesSeen++
	if IsSuccess(rating) {
		rec.TimesCorrect++
		rec.IntervalDays = min(rec.IntervalDays*2, MaxIntervalDays)
	} else {
		rec.IntervalDays = MinIntervalDays
	}
	reviewedAt := now
	rec.LastReviewedAt = &reviewedAt

	s.records[itemID] = rec
	if qualifiesForMastery(rec) {
		s.mastered[itemID] = struct{}{}
	}
	return rec
}

// IsDue reports whether itemID should be reviewed at now. Items never
// reviewed are always due.
func (s *Store) IsDue(itemID string, now time.Time) bool {
	rec := s.Record(itemID)
	if rec.LastReviewedAt == nil {
		return true
	}
	return ElapsedDays(*rec.LastReviewedAt, now) >= rec.IntervalDays
}

// NextDue returns the instant itemID becomes due. The second value is false
// for items that have never been reviewed (they are due immediately).
func (s *Store) NextDue(itemID string) (time.Time, bool) {
	rec := s.Record(itemID)
	if rec.LastReviewedAt == nil {
		return time.Time{}, false
	}
	return rec.LastReviewedAt.Add(time.Duration(rec.IntervalDays) * 24 * time.Hour), true
}

// IsMastered reports whether itemID has been flagged mastered.
func (s *Store) IsMastered(itemID string) bool {
	_, ok := s.mastered[itemID]
	return ok
}

// MasteredIDs returns the mastered item IDs in sorted order.
func (s *Store) MasteredIDs() []string {
	ids := make([]string, 0, len(s.mastered))
	for id := range s.mastered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of items with a stored record.
func (s *Store) Len() int {
	return len(s.records)
}

// Snapshot copies the store into its persisted shape.
func (s *Store) Snapshot() Snapshot {
	records := make(map[string]ReviewRecord, len(s.records))
	for id, rec := range s.records {
		if rec.LastReviewedAt != nil {
			t := *rec.LastReviewedAt
			rec.LastReviewedAt = &t
		}
		records[id] = rec
	}
	return Snapshot{
		Records:  records,
		Mastered: s.MasteredIDs(),
	}
}

// ElapsedDays returns the number of whole 24h periods between from and to.
// Negative spans count as zero.
func ElapsedDays(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// qualifiesForMastery is only evaluated once TimesSeen is known to be positive,
// so the ratio never divides by zero.
func qualifiesForMastery(rec ReviewRecord) bool {
	if rec.TimesSeen < MasteryMinSeen {
		return false
	}
	return float64(rec.TimesCorrect)/float64(rec.TimesSeen) >= MasteryMinAccuracy
}

func normalize(rec ReviewRecord) ReviewRecord {
	if rec.TimesSeen < 0 {
		rec.TimesSeen = 0
	}
	rec.TimesCorrect = max(0, min(rec.TimesCorrect, rec.TimesSeen))
	rec.IntervalDays = max(MinIntervalDays, min(rec.IntervalDays, MaxIntervalDays))
	return rec
}
