package listings

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/gimmescrapes/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init("test")
	os.Exit(m.Run())
}

// memStore is an in-memory Store used to drive the reconciler without a
// database.
type memStore struct {
	byURL     map[string]*Listing
	nextID    int64
	failOnURL string
	touched   map[int64]time.Time
	inserts   int
	updates   int
}

func newMemStore() *memStore {
	return &memStore{
		byURL:   make(map[string]*Listing),
		touched: make(map[int64]time.Time),
		nextID:  1,
	}
}

func (s *memStore) ByURL(_ context.Context, url string) (*Listing, error) {
	if existing, ok := s.byURL[url]; ok {
		clone := *existing
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (s *memStore) Insert(_ context.Context, listing *Listing) error {
	if listing.URL == s.failOnURL {
		return errors.New("injected insert failure")
	}
	if _, ok := s.byURL[listing.URL]; ok {
		return ErrDuplicateURL
	}
	listing.ID = s.nextID
	s.nextID++
	clone := *listing
	s.byURL[listing.URL] = &clone
	s.inserts++
	return nil
}

func (s *memStore) Update(_ context.Context, listing *Listing) error {
	clone := *listing
	s.byURL[listing.URL] = &clone
	s.updates++
	return nil
}

func (s *memStore) Touch(_ context.Context, id int64, at time.Time) error {
	s.touched[id] = at
	for _, l := range s.byURL {
		if l.ID == id {
			l.LastScrapedAt = at
		}
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func candidate(url string) Listing {
	return Listing{
		SourceID: 1,
		URL:      url,
		Title:    "Apartament 2 camere",
		Price:    floatPtr(85000),
		Currency: "EUR",
		Rooms:    intPtr(2),
	}
}

func TestReconcileInsertsNewListings(t *testing.T) {
	store := newMemStore()
	reconciler := NewReconciler(store)

	result := reconciler.Reconcile(context.Background(), []Listing{
		candidate("https://olx.ro/oferta/a"),
		candidate("https://olx.ro/oferta/b"),
	})

	if result.New != 2 || result.Updated != 0 || result.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if store.inserts != 2 {
		t.Fatalf("expected 2 inserts, got %d", store.inserts)
	}
	if result.Total() != 2 {
		t.Fatalf("expected total 2, got %d", result.Total())
	}
}

func TestReconcileUpdatesChangedFields(t *testing.T) {
	store := newMemStore()
	reconciler := NewReconciler(store)
	ctx := context.Background()

	first := candidate("https://olx.ro/oferta/a")
	first.SurfaceSqm = floatPtr(54.5)
	reconciler.Reconcile(ctx, []Listing{first})

	// Same listing, new price, surface absent this time.
	second := candidate("https://olx.ro/oferta/a")
	second.Price = floatPtr(82000)
	second.SurfaceSqm = nil

	result := reconciler.Reconcile(ctx, []Listing{second})
	if result.Updated != 1 || result.New != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	stored := store.byURL["https://olx.ro/oferta/a"]
	if stored.Price == nil || *stored.Price != 82000 {
		t.Fatalf("expected updated price 82000, got %v", stored.Price)
	}
	if stored.SurfaceSqm == nil || *stored.SurfaceSqm != 54.5 {
		t.Fatal("absent candidate field must not erase stored surface")
	}
}

func TestReconcileUnchangedRefreshesLastSeen(t *testing.T) {
	store := newMemStore()
	reconciler := NewReconciler(store)
	ctx := context.Background()

	reconciler.Reconcile(ctx, []Listing{candidate("https://olx.ro/oferta/a")})
	before := store.byURL["https://olx.ro/oferta/a"].LastScrapedAt

	result := reconciler.Reconcile(ctx, []Listing{candidate("https://olx.ro/oferta/a")})
	if result.Skipped != 1 || result.Updated != 0 || result.New != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	stored := store.byURL["https://olx.ro/oferta/a"]
	if len(store.touched) != 1 {
		t.Fatal("expected a touch for the unchanged listing")
	}
	if !stored.LastScrapedAt.After(before) {
		t.Fatal("expected last-seen timestamp to advance")
	}
}

func TestReconcileSkipsEmptyURL(t *testing.T) {
	store := newMemStore()
	reconciler := NewReconciler(store)

	result := reconciler.Reconcile(context.Background(), []Listing{
		candidate(""),
		candidate("https://olx.ro/oferta/a"),
	})

	if result.Skipped != 1 || result.New != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if store.inserts != 1 {
		t.Fatalf("expected 1 insert, got %d", store.inserts)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newMemStore()
	reconciler := NewReconciler(store)
	ctx := context.Background()

	batch := []Listing{
		candidate("https://olx.ro/oferta/a"),
		candidate("https://olx.ro/oferta/b"),
	}

	first := reconciler.Reconcile(ctx, batch)
	if first.New != 2 {
		t.Fatalf("expected 2 new on first pass, got %+v", first)
	}

	second := reconciler.Reconcile(ctx, batch)
	if second.New != 0 {
		t.Fatalf("expected 0 new on second pass, got %+v", second)
	}
	if second.Skipped != 2 {
		t.Fatalf("expected 2 skipped on second pass, got %+v", second)
	}
}

func TestReconcileLaterDuplicateWins(t *testing.T) {
	store := newMemStore()
	reconciler := NewReconciler(store)

	early := candidate("https://olx.ro/oferta/a")
	early.Price = floatPtr(90000)
	late := candidate("https://olx.ro/oferta/a")
	late.Price = floatPtr(80000)

	result := reconciler.Reconcile(context.Background(), []Listing{early, late})
	if result.New != 1 || result.Updated != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	stored := store.byURL["https://olx.ro/oferta/a"]
	if *stored.Price != 80000 {
		t.Fatalf("expected the later duplicate's price, got %v", *stored.Price)
	}
}

func TestReconcileCandidateErrorDoesNotAbortBatch(t *testing.T) {
	store := newMemStore()
	store.failOnURL = "https://olx.ro/oferta/bad"
	reconciler := NewReconciler(store)

	result := reconciler.Reconcile(context.Background(), []Listing{
		candidate("https://olx.ro/oferta/a"),
		candidate("https://olx.ro/oferta/bad"),
		candidate("https://olx.ro/oferta/b"),
	})

	if result.New != 2 || result.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestReconcileInsertRaceConvertsToUpdate(t *testing.T) {
	store := newMemStore()
	reconciler := NewReconciler(store)
	ctx := context.Background()

	// Simulate another job winning the insert between lookup and insert by
	// pre-seeding the store through a raced insert path.
	raced := candidate("https://olx.ro/oferta/a")
	raced.Price = floatPtr(70000)
	if err := store.Insert(ctx, &raced); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	ours := candidate("https://olx.ro/oferta/a")
	ours.Price = floatPtr(75000)
	result := reconciler.Reconcile(ctx, []Listing{ours})

	if result.New != 0 || result.Updated != 1 {
		t.Fatalf("expected the race to convert to an update, got %+v", result)
	}
	if *store.byURL["https://olx.ro/oferta/a"].Price != 75000 {
		t.Fatal("expected last committed price to win")
	}
}

func TestMergeFeatureAndImageChanges(t *testing.T) {
	existing := &Listing{
		URL:       "https://olx.ro/oferta/a",
		ImageURLs: datatypes.JSONSlice[string]{"img1.jpg"},
		Features:  datatypes.JSONMap{"balcony": true},
	}
	update := &Listing{
		URL:       "https://olx.ro/oferta/a",
		ImageURLs: datatypes.JSONSlice[string]{"img1.jpg", "img2.jpg"},
		Features:  datatypes.JSONMap{"balcony": true, "parking": true},
	}

	if !merge(existing, update) {
		t.Fatal("expected image and feature changes to be detected")
	}
	if len(existing.ImageURLs) != 2 || len(existing.Features) != 2 {
		t.Fatalf("merge did not apply collections: %+v", existing)
	}

	same := &Listing{
		URL:       "https://olx.ro/oferta/a",
		ImageURLs: datatypes.JSONSlice[string]{"img1.jpg", "img2.jpg"},
		Features:  datatypes.JSONMap{"balcony": true, "parking": true},
	}
	if merge(existing, same) {
		t.Fatal("identical collections must not count as a change")
	}
}
