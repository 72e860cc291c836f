package tasks

import (
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/libsync/internal/models"
)

var sectionTitles = map[models.EntityType]string{
	models.EntityTrack:  "TRACKS/SONGS:",
	models.EntityAlbum:  "ALBUMS:",
	models.EntityArtist: "ARTISTS:",
}

// Reporter accumulates entities that could not be matched during a run. It is safe for concurrent use.
type Reporter struct {
	source, target string

	mu      sync.Mutex
	seen    map[models.CacheKey]bool
	records map[models.EntityType][]models.UnmatchedRecord
}

// NewReporter creates an empty reporter. The catalog names appear in the report header.
func NewReporter(source, target string) *Reporter {
	return &Reporter{
		source:  source,
		target:  target,
		seen:    make(map[models.CacheKey]bool),
		records: make(map[models.EntityType][]models.UnmatchedRecord),
	}
}

// Record adds rec unless an entity with the same type and source id was already recorded.
func (r *Reporter) Record(rec models.UnmatchedRecord) {
	key := models.CacheKey{EntityType: rec.EntityType, SourceID: rec.SourceID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[key] {
		return
	}
	r.seen[key] = true
	r.records[rec.EntityType] = append(r.records[rec.EntityType], rec)
}

// Len returns the number of distinct records.
func (r *Reporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// Records returns a copy of the records grouped in report order.
func (r *Reporter) Records() []models.UnmatchedRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.UnmatchedRecord, 0, len(r.seen))
	for _, t := range models.EntityTypes {
		out = append(out, r.records[t]...)
	}
	return out
}

// Flush renders the report. It is empty when nothing was recorded and does not reset the reporter.
func (r *Reporter) Flush() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.seen) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s to %s Sync Log\n", r.source, r.target)
	fmt.Fprintf(&b, "Items Not Found on %s\n", r.target)
	b.WriteString(strings.Repeat("=", 50) + "\n")

	for _, t := range models.EntityTypes {
		recs := r.records[t]
		if len(recs) == 0 {
			continue
		}
		b.WriteString("\n" + sectionTitles[t] + "\n")
		b.WriteString(strings.Repeat("-", 30) + "\n")
		for _, rec := range recs {
			b.WriteString(rec.DisplayName)
			if rec.Context != "" {
				fmt.Fprintf(&b, " (from %s)", rec.Context)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nTotal items not found: %d\n", len(r.seen))
	return b.String()
}

// Reset discards every record.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.seen)
	clear(r.records)
}
