package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/bookify-reservation/internal/model"
	"github.com/iliyamo/bookify-reservation/internal/reservation"
)

// MemoryStore keeps listings, bookings and payments in process memory.  It
// serves STORE=memory deployments and the tests.  Reservations on one
// listing are serialised by a per-listing mutex held for the whole unit;
// writes are staged on the transaction and applied at commit, so a failed
// unit leaves no trace.
type MemoryStore struct {
	mu          sync.RWMutex
	listings    map[uint64]model.Listing
	bookings    map[uint64]model.Booking
	payments    map[uint64]model.Payment
	lastListing uint64
	lastBooking uint64
	lastPayment uint64

	locksMu      sync.Mutex
	listingLocks map[uint64]*sync.Mutex
	bookingLocks map[uint64]*sync.Mutex

	now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:     map[uint64]model.Listing{},
		bookings:     map[uint64]model.Booking{},
		payments:     map[uint64]model.Payment{},
		listingLocks: map[uint64]*sync.Mutex{},
		bookingLocks: map[uint64]*sync.Mutex{},
		now:          time.Now,
	}
}

func (s *MemoryStore) lockFor(table map[uint64]*sync.Mutex, id uint64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := table[id]
	if !ok {
		m = &sync.Mutex{}
		table[id] = m
	}
	return m
}

// Atomically implements reservation.Store.
func (s *MemoryStore) Atomically(ctx context.Context, fn func(reservation.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		s:        s,
		listings: map[uint64]bool{},
		bookings: map[uint64]bool{},
		statuses: map[uint64]statusChange{},
		edits:    map[uint64]model.Booking{},
		deltas:   map[uint64]int{},
	}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type statusChange struct {
	to model.Status
	at time.Time
}

// memTx holds the locks taken by one unit and the writes it has staged.
type memTx struct {
	s        *MemoryStore
	held     []*sync.Mutex
	listings map[uint64]bool
	bookings map[uint64]bool

	inserted []model.Booking
	statuses map[uint64]statusChange
	edits    map[uint64]model.Booking
	deltas   map[uint64]int
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, b := range t.inserted {
		t.s.bookings[b.ID] = b
	}
	for id, e := range t.edits {
		if b, ok := t.s.bookings[id]; ok {
			t.s.bookings[id] = applyEdit(b, e)
		}
	}
	for id, ch := range t.statuses {
		if b, ok := t.s.bookings[id]; ok {
			b.Status = ch.to
			b.UpdatedAt = ch.at
			t.s.bookings[id] = b
		}
	}
	for id, d := range t.deltas {
		if l, ok := t.s.listings[id]; ok {
			l.UnitsCommitted += d
			if l.UnitsCommitted < 0 {
				l.UnitsCommitted = 0
			}
			t.s.listings[id] = l
		}
	}
}

// view returns the booking as this unit sees it: committed state plus the
// unit's own staged inserts, edits and status changes.
func (t *memTx) view(id uint64) (model.Booking, bool) {
	b, ok := t.s.bookings[id]
	if !ok {
		for _, ins := range t.inserted {
			if ins.ID == id {
				b, ok = ins, true
				break
			}
		}
	}
	if !ok {
		return model.Booking{}, false
	}
	if e, staged := t.edits[id]; staged {
		b = applyEdit(b, e)
	}
	if ch, staged := t.statuses[id]; staged {
		b.Status = ch.to
		b.UpdatedAt = ch.at
	}
	return b, true
}

// visible calls fn for every booking of listingID as this unit sees it.
func (t *memTx) visible(listingID uint64, fn func(model.Booking)) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for id, b := range t.s.bookings {
		if b.ListingID != listingID {
			continue
		}
		if v, ok := t.view(id); ok {
			fn(v)
		}
	}
	for _, b := range t.inserted {
		if b.ListingID != listingID {
			continue
		}
		if v, ok := t.view(b.ID); ok {
			fn(v)
		}
	}
}

func (t *memTx) LockListing(ctx context.Context, listingID uint64) (model.Listing, error) {
	if !t.listings[listingID] {
		m := t.s.lockFor(t.s.listingLocks, listingID)
		m.Lock()
		t.held = append(t.held, m)
		t.listings[listingID] = true
	}
	t.s.mu.RLock()
	l, ok := t.s.listings[listingID]
	t.s.mu.RUnlock()
	if !ok {
		return model.Listing{}, ErrListingNotFound
	}
	l.UnitsCommitted += t.deltas[listingID]
	return l, nil
}

func (t *memTx) CountOverlapping(ctx context.Context, listingID uint64, checkIn, checkOut time.Time) (int, error) {
	n := 0
	t.visible(listingID, func(b model.Booking) {
		if b.Status != model.StatusConfirmed || b.Category != model.CategoryHotel || b.CheckIn == nil || b.CheckOut == nil {
			return
		}
		if reservation.Overlaps(*b.CheckIn, *b.CheckOut, checkIn, checkOut) {
			n++
		}
	})
	return n, nil
}

func (t *memTx) SumConfirmedGuests(ctx context.Context, listingID uint64, category model.Category) (int, error) {
	sum := 0
	t.visible(listingID, func(b model.Booking) {
		if b.Status == model.StatusConfirmed && b.Category == category {
			sum += b.NumGuests
		}
	})
	return sum, nil
}

func (t *memTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if !t.listings[b.ListingID] {
		return fmt.Errorf("insert booking: listing %d is not locked by this transaction", b.ListingID)
	}
	t.s.mu.Lock()
	t.s.lastBooking++
	b.ID = t.s.lastBooking
	t.s.mu.Unlock()
	stored := *b
	stored.Payments = nil
	t.inserted = append(t.inserted, stored)
	return nil
}

func (t *memTx) LockBooking(ctx context.Context, bookingID uint64) (model.Booking, error) {
	if !t.bookings[bookingID] {
		m := t.s.lockFor(t.s.bookingLocks, bookingID)
		m.Lock()
		t.held = append(t.held, m)
		t.bookings[bookingID] = true
	}
	t.s.mu.RLock()
	b, ok := t.view(bookingID)
	t.s.mu.RUnlock()
	if !ok {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, nil
}

func (t *memTx) SetBookingStatus(ctx context.Context, bookingID uint64, from, to model.Status, at time.Time) error {
	t.s.mu.RLock()
	b, ok := t.view(bookingID)
	t.s.mu.RUnlock()
	if !ok {
		return ErrBookingNotFound
	}
	if b.Status != from {
		return fmt.Errorf("%w: booking %d is not %s", ErrConflict, bookingID, from)
	}
	t.statuses[bookingID] = statusChange{to: to, at: at.UTC()}
	return nil
}

func (t *memTx) UpdateBooking(ctx context.Context, b model.Booking) error {
	if !t.bookings[b.ID] {
		return fmt.Errorf("update booking: booking %d is not locked by this transaction", b.ID)
	}
	t.s.mu.RLock()
	cur, ok := t.view(b.ID)
	t.s.mu.RUnlock()
	if !ok {
		return ErrBookingNotFound
	}
	if cur.Status != b.Status {
		return fmt.Errorf("%w: booking %d is no longer %s", ErrConflict, b.ID, b.Status)
	}
	t.edits[b.ID] = b
	return nil
}

// applyEdit copies the columns UpdateBooking may change.
func applyEdit(b, e model.Booking) model.Booking {
	b.CheckIn, b.CheckOut = e.CheckIn, e.CheckOut
	b.NumGuests = e.NumGuests
	b.UpdatedAt = e.UpdatedAt.UTC()
	return b
}

func (t *memTx) DecrementInventory(ctx context.Context, listingID uint64, n int) error {
	if !t.listings[listingID] {
		return fmt.Errorf("decrement inventory: listing %d is not locked by this transaction", listingID)
	}
	t.s.mu.RLock()
	l, ok := t.s.listings[listingID]
	t.s.mu.RUnlock()
	if !ok {
		return ErrListingNotFound
	}
	if l.Category == model.CategoryHotel {
		return fmt.Errorf("%w: hotel listing %d has no unit counter", ErrInsufficientInventory, listingID)
	}
	committed := l.UnitsCommitted + t.deltas[listingID]
	if committed+n > l.Capacity() {
		return fmt.Errorf("%w: listing %d cannot take %d more units", ErrInsufficientInventory, listingID, n)
	}
	t.deltas[listingID] += n
	return nil
}

func (t *memTx) IncrementInventory(ctx context.Context, listingID uint64, n int) error {
	if !t.listings[listingID] {
		return fmt.Errorf("increment inventory: listing %d is not locked by this transaction", listingID)
	}
	t.deltas[listingID] -= n
	return nil
}

// GetListing implements reservation.Store.
func (s *MemoryStore) GetListing(ctx context.Context, listingID uint64) (model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[listingID]
	if !ok {
		return model.Listing{}, ErrListingNotFound
	}
	return l, nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, bookingID uint64) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, nil
}

func (s *MemoryStore) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return s.filterBookings(func(b model.Booking) bool { return b.UserID == userID }), nil
}

func (s *MemoryStore) ListBookingsByListingOwner(ctx context.Context, ownerID uint64) ([]model.Booking, error) {
	s.mu.RLock()
	owned := map[uint64]bool{}
	for id, l := range s.listings {
		if l.OwnedBy(ownerID) {
			owned[id] = true
		}
	}
	s.mu.RUnlock()
	return s.filterBookings(func(b model.Booking) bool { return owned[b.ListingID] }), nil
}

func (s *MemoryStore) ListBookings(ctx context.Context) ([]model.Booking, error) {
	return s.filterBookings(func(model.Booking) bool { return true }), nil
}

// filterBookings returns matching bookings newest first, like the MySQL
// queries.
func (s *MemoryStore) filterBookings(keep func(model.Booking) bool) []model.Booking {
	s.mu.RLock()
	out := []model.Booking{}
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BookedAt.Equal(out[j].BookedAt) {
			return out[i].BookedAt.After(out[j].BookedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Snapshot reads inventory state without taking the listing lock.
func (s *MemoryStore) Snapshot(ctx context.Context, l model.Listing, checkIn, checkOut *time.Time) (reservation.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snap reservation.Snapshot
	for _, b := range s.bookings {
		if b.ListingID != l.ID || b.Status != model.StatusConfirmed || b.Category != l.Category {
			continue
		}
		switch {
		case l.Category != model.CategoryHotel:
			snap.ConfirmedGuests += b.NumGuests
		case checkIn != nil && checkOut != nil && b.CheckIn != nil && b.CheckOut != nil:
			if reservation.Overlaps(*b.CheckIn, *b.CheckOut, *checkIn, *checkOut) {
				snap.Overlapping++
			}
		}
	}
	return snap, nil
}

// DeleteBooking removes a booking and its payments.
func (s *MemoryStore) DeleteBooking(ctx context.Context, bookingID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[bookingID]; !ok {
		return ErrBookingNotFound
	}
	delete(s.bookings, bookingID)
	for id, p := range s.payments {
		if p.BookingID == bookingID {
			delete(s.payments, id)
		}
	}
	return nil
}

// CreatePayment implements reservation.PaymentStore.
func (s *MemoryStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[p.BookingID]; !ok {
		return ErrBookingNotFound
	}
	s.lastPayment++
	p.ID = s.lastPayment
	s.payments[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, paymentID uint64) (model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return model.Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListPaymentsByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error) {
	s.mu.RLock()
	out := []model.Payment{}
	for _, p := range s.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateListing stores l and assigns its id and timestamps.
func (s *MemoryStore) CreateListing(ctx context.Context, l *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	s.lastListing++
	l.ID = s.lastListing
	l.UnitsCommitted = 0
	l.CreatedAt, l.UpdatedAt = now, now
	s.listings[l.ID] = *l
	return nil
}

func (s *MemoryStore) ListListings(ctx context.Context, category model.Category) ([]model.Listing, error) {
	s.mu.RLock()
	out := []model.Listing{}
	for _, l := range s.listings {
		if category == "" || l.Category == category {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateListing takes the listing lock so the capacity check cannot race a
// reservation.
func (s *MemoryStore) UpdateListing(ctx context.Context, l model.Listing) (model.Listing, error) {
	m := s.lockFor(s.listingLocks, l.ID)
	m.Lock()
	defer m.Unlock()

	cur, err := s.GetListing(ctx, l.ID)
	if err != nil {
		return model.Listing{}, err
	}
	merged, err := mergeListing(cur, l)
	if err != nil {
		return model.Listing{}, err
	}
	merged.UpdatedAt = s.now().UTC()
	s.mu.Lock()
	s.listings[merged.ID] = merged
	s.mu.Unlock()
	return merged, nil
}

// DeleteListing removes a listing that has no bookings.
func (s *MemoryStore) DeleteListing(ctx context.Context, listingID uint64) error {
	m := s.lockFor(s.listingLocks, listingID)
	m.Lock()
	defer m.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[listingID]; !ok {
		return ErrListingNotFound
	}
	n := 0
	for _, b := range s.bookings {
		if b.ListingID == listingID {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%w: listing %d has %d bookings", ErrConflict, listingID, n)
	}
	delete(s.listings, listingID)
	return nil
}
