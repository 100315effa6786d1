package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/bookify-reservation/internal/model"
	"github.com/iliyamo/bookify-reservation/internal/repository"
)

func seeded(t *testing.T) (*repository.MemoryStore, model.Listing) {
	t.Helper()
	store := repository.NewMemoryStore()
	l, err := model.NewListing(model.Listing{Title: "Fado night", Country: "PT", Category: model.CategoryEvent, Venue: "Coliseu", TicketCapacity: 100})
	if err != nil {
		t.Fatalf("NewListing: %v", err)
	}
	if err := store.CreateListing(context.Background(), &l); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	return store, l
}

func TestGetListingMissFillsCache(t *testing.T) {
	store, l := seeded(t)
	db, mock := redismock.NewClientMock()
	c := NewListingCache(store, db, time.Minute, zaptest.NewLogger(t))

	data, _ := json.Marshal(l)
	mock.ExpectGet("bookify:listing:1").RedisNil()
	mock.ExpectSet("bookify:listing:1", data, time.Minute).SetVal("OK")

	got, err := c.GetListing(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if got.Title != l.Title {
		t.Errorf("title = %q, want %q", got.Title, l.Title)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetListingHitSkipsStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewListingCache(repository.NewMemoryStore(), db, time.Minute, zaptest.NewLogger(t))

	cached := model.Listing{ID: 9, Title: "from cache", Category: model.CategoryFlight}
	data, _ := json.Marshal(cached)
	mock.ExpectGet("bookify:listing:9").SetVal(string(data))

	got, err := c.GetListing(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if got.Title != "from cache" {
		t.Errorf("title = %q", got.Title)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetListingRedisDownFallsBack(t *testing.T) {
	store, l := seeded(t)
	db, mock := redismock.NewClientMock()
	c := NewListingCache(store, db, time.Minute, zaptest.NewLogger(t))

	data, _ := json.Marshal(l)
	mock.ExpectGet("bookify:listing:1").SetErr(errors.New("connection reset"))
	mock.ExpectSet("bookify:listing:1", data, time.Minute).SetErr(errors.New("connection reset"))

	if _, err := c.GetListing(context.Background(), l.ID); err != nil {
		t.Fatalf("GetListing: %v", err)
	}
}

func TestGetListingNotFoundIsNotCached(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewListingCache(repository.NewMemoryStore(), db, time.Minute, zaptest.NewLogger(t))

	mock.ExpectGet("bookify:listing:404").RedisNil()

	if _, err := c.GetListing(context.Background(), 404); !errors.Is(err, repository.ErrListingNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestWritesInvalidate(t *testing.T) {
	store, l := seeded(t)
	db, mock := redismock.NewClientMock()
	c := NewListingCache(store, db, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	mock.ExpectDel("bookify:listing:1").SetVal(1)
	upd := l
	upd.TicketCapacity = 150
	if _, err := c.UpdateListing(ctx, upd); err != nil {
		t.Fatalf("UpdateListing: %v", err)
	}

	mock.ExpectDel("bookify:listing:1").SetVal(1)
	if err := c.DeleteListing(ctx, l.ID); err != nil {
		t.Fatalf("DeleteListing: %v", err)
	}

	// A failed write leaves the cache alone.
	if err := c.DeleteListing(ctx, l.ID); !errors.Is(err, repository.ErrListingNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestNilRedisPassesThrough(t *testing.T) {
	store, l := seeded(t)
	c := NewListingCache(store, nil, 0, zaptest.NewLogger(t))
	got, err := c.GetListing(context.Background(), l.ID)
	if err != nil || got.ID != l.ID {
		t.Fatalf("GetListing = %+v, %v", got, err)
	}
	if err := c.DeleteListing(context.Background(), l.ID); err != nil {
		t.Fatalf("DeleteListing: %v", err)
	}
}
