// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/services"
	"github.com/desertthunder/libsync/internal/shared"
)

// FakeSource is an in-memory [services.SourceReader].
type FakeSource struct {
	mu          sync.Mutex
	collections map[string]*models.SourceCollection
	Owned       []models.PlaylistRef
	FetchErr    error
}

// NewFakeSource creates a source with no collections.
func NewFakeSource() *FakeSource {
	return &FakeSource{collections: make(map[string]*models.SourceCollection)}
}

func collectionKey(kind models.CollectionKind, id string) string {
	if kind != models.KindPlaylist {
		id = ""
	}
	return kind.String() + ":" + id
}

func (s *FakeSource) Name() string { return "Spotify" }

// Set replaces a collection. Playlists are also listed as owned.
func (s *FakeSource) Set(c models.SourceCollection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collectionKey(c.Kind, c.ID)] = &c
	if c.Kind == models.KindPlaylist {
		for _, p := range s.Owned {
			if p.ID == c.ID {
				return
			}
		}
		s.Owned = append(s.Owned, models.PlaylistRef{ID: c.ID, Name: c.Name, TrackCount: len(c.Entities)})
	}
}

func (s *FakeSource) FetchCollection(ctx context.Context, kind models.CollectionKind, id string) (*models.SourceCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	c, ok := s.collections[collectionKey(kind, id)]
	if !ok {
		if kind == models.KindPlaylist {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
		}
		return &models.SourceCollection{Kind: kind}, nil
	}
	out := *c
	out.Entities = append([]models.SourceEntity(nil), c.Entities...)
	return &out, nil
}

func (s *FakeSource) OwnedPlaylists(ctx context.Context) ([]models.PlaylistRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PlaylistRef(nil), s.Owned...), nil
}

// Call is one mutating call received by [FakeTarget].
type Call struct {
	Op           string // "add" or "remove"
	Kind         models.CollectionKind
	CollectionID string
	TargetID     string
	Position     int
}

// FakeTarget is an in-memory [services.TargetCatalog].
//
// Search returns every catalog entry of the requested type and lets the matcher decide.
type FakeTarget struct {
	mu          sync.Mutex
	catalog     []models.Candidate
	collections map[string]*models.TargetCollection
	nextID      int

	// Outcomes queues results per target id; once drained, calls succeed.
	Outcomes  map[string][]services.OpResult
	SearchErr error
	// Results overrides the catalog for an exact query.
	Results map[string][]models.Candidate

	Searches []string
	Calls    []Call
}

// NewFakeTarget creates a target whose search index holds catalog.
func NewFakeTarget(catalog ...models.Candidate) *FakeTarget {
	return &FakeTarget{
		catalog:     catalog,
		collections: make(map[string]*models.TargetCollection),
		Outcomes:    make(map[string][]services.OpResult),
		Results:     make(map[string][]models.Candidate),
	}
}

func (f *FakeTarget) Name() string { return "YouTube Music" }

// SetCollection replaces a collection. Items get their catalog metadata and an entry handle.
func (f *FakeTarget) SetCollection(kind models.CollectionKind, id, name string, targetIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &models.TargetCollection{Kind: kind, ID: id, Name: name}
	for _, tid := range targetIDs {
		c.Items = append(c.Items, f.item(tid))
	}
	f.collections[collectionKey(kind, id)] = c
}

// IDs returns the current target ids of a collection.
func (f *FakeTarget) IDs(kind models.CollectionKind, id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collections[collectionKey(kind, id)].IDs()
}

// SearchCount returns the number of searches issued so far.
func (f *FakeTarget) SearchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Searches)
}

// Fail queues results returned for targetID before calls start succeeding.
func (f *FakeTarget) Fail(targetID string, results ...services.OpResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outcomes[targetID] = append(f.Outcomes[targetID], results...)
}

func (f *FakeTarget) item(targetID string) models.CollectionItem {
	f.nextID++
	item := models.CollectionItem{TargetID: targetID, Ref: fmt.Sprintf("set-%d", f.nextID)}
	for _, c := range f.catalog {
		if c.ID == targetID {
			item.Candidate = &c
			break
		}
	}
	return item
}

func (f *FakeTarget) outcome(targetID string) (services.OpResult, bool) {
	queue := f.Outcomes[targetID]
	if len(queue) == 0 {
		return services.Ok(), false
	}
	f.Outcomes[targetID] = queue[1:]
	return queue[0], true
}

func (f *FakeTarget) Search(ctx context.Context, t models.EntityType, query string) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Searches = append(f.Searches, query)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	index := f.catalog
	if results, ok := f.Results[query]; ok {
		index = results
	}
	var out []models.Candidate
	for _, c := range index {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *FakeTarget) FetchCollection(ctx context.Context, kind models.CollectionKind, id string) (*models.TargetCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[collectionKey(kind, id)]
	if !ok {
		if kind == models.KindPlaylist {
			return nil, fmt.Errorf("%w: %s", services.ErrNotFound, id)
		}
		return &models.TargetCollection{Kind: kind}, nil
	}
	out := *c
	out.Items = append([]models.CollectionItem(nil), c.Items...)
	return &out, nil
}

func (f *FakeTarget) Playlists(ctx context.Context) ([]models.PlaylistRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []models.PlaylistRef
	for _, c := range f.collections {
		if c.Kind == models.KindPlaylist {
			refs = append(refs, models.PlaylistRef{ID: c.ID, Name: c.Name, TrackCount: len(c.Items)})
		}
	}
	return refs, nil
}

func (f *FakeTarget) Add(ctx context.Context, kind models.CollectionKind, collectionID, targetID string, position int) services.OpResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Op: "add", Kind: kind, CollectionID: collectionID, TargetID: targetID, Position: position})
	if res, ok := f.outcome(targetID); ok {
		return res
	}

	key := collectionKey(kind, collectionID)
	c, ok := f.collections[key]
	if !ok {
		c = &models.TargetCollection{Kind: kind, ID: collectionID}
		f.collections[key] = c
	}
	item := f.item(targetID)
	if position < 0 || position >= len(c.Items) {
		c.Items = append(c.Items, item)
	} else {
		c.Items = append(c.Items, models.CollectionItem{})
		copy(c.Items[position+1:], c.Items[position:])
		c.Items[position] = item
	}
	return services.Ok()
}

func (f *FakeTarget) Remove(ctx context.Context, kind models.CollectionKind, collectionID string, item models.CollectionItem) services.OpResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Op: "remove", Kind: kind, CollectionID: collectionID, TargetID: item.TargetID, Position: -1})
	if res, ok := f.outcome(item.TargetID); ok {
		return res
	}

	c, ok := f.collections[collectionKey(kind, collectionID)]
	if !ok {
		return services.ResultOf(fmt.Errorf("%w: collection %s", shared.ErrPermanentAPI, collectionID))
	}
	for i, it := range c.Items {
		if it.TargetID == item.TargetID && (item.Ref == "" || it.Ref == item.Ref) {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return services.Ok()
		}
	}
	return services.ResultOf(fmt.Errorf("%w: %s", services.ErrNotFound, item.TargetID))
}

func (f *FakeTarget) CreatePlaylist(ctx context.Context, name, description string) (models.PlaylistRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("PL%d", f.nextID)
	f.collections[collectionKey(models.KindPlaylist, id)] = &models.TargetCollection{Kind: models.KindPlaylist, ID: id, Name: name}
	return models.PlaylistRef{ID: id, Name: name, Description: description}, nil
}

// Transient is a retryable failure result.
func Transient() services.OpResult {
	return services.ResultOf(fmt.Errorf("%w: rate limited", shared.ErrTransientAPI))
}

// Permanent is a non-retryable failure result.
func Permanent() services.OpResult {
	return services.ResultOf(fmt.Errorf("%w: invalid id", shared.ErrPermanentAPI))
}

// Gone is a not-found failure result.
func Gone() services.OpResult {
	return services.ResultOf(fmt.Errorf("%w: %w", shared.ErrPermanentAPI, services.ErrNotFound))
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("File should not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
