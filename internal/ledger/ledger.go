package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vaultgate/vaultgate/pkg/models"
)

// Decision is the outcome of a quota admission. The numeric values are the
// wire codes of the ledger HTTP surface.
type Decision int

const (
	Admitted             Decision = 0
	DailyLimitExceeded   Decision = 1
	StorageLimitExceeded Decision = 2
)

// String returns a stable name for the decision
func (d Decision) String() string {
	switch d {
	case Admitted:
		return "admitted"
	case DailyLimitExceeded:
		return "daily_limit_exceeded"
	case StorageLimitExceeded:
		return "storage_limit_exceeded"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// ErrUnavailable is returned when the ledger cannot be reached or its store
// fails. Upload-path callers treat it as a denial; delete-path callers log a
// reconciliation gap instead.
var ErrUnavailable = errors.New("quota ledger unavailable")

// Service is the quota ledger core. It owns all UsageRecord mutation and
// serializes admissions per principal: two concurrent admissions for one
// tenant can never both read a stale total and both pass the limit. Different
// principals proceed fully in parallel.
type Service struct {
	store        Store
	dailyLimit   int64
	storageLimit int64

	locks map[string]*sync.Mutex
	mu    sync.RWMutex

	now func() time.Time
}

// NewService creates a ledger service over the given store. Limits are in
// bytes and apply uniformly to every principal.
func NewService(store Store, dailyLimit, storageLimit int64) *Service {
	return &Service{
		store:        store,
		dailyLimit:   dailyLimit,
		storageLimit: storageLimit,
		locks:        make(map[string]*sync.Mutex),
		now:          time.Now,
	}
}

// lockFor returns the mutex serializing admissions for one principal
func (s *Service) lockFor(principal string) *sync.Mutex {
	s.mu.RLock()
	lock, exists := s.locks[principal]
	s.mu.RUnlock()

	if exists {
		return lock
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	lock, exists = s.locks[principal]
	if exists {
		return lock
	}

	lock = &sync.Mutex{}
	s.locks[principal] = lock

	return lock
}

// Admit applies a byte delta against a principal's quota. Positive deltas are
// checked against the daily bandwidth budget and then the total storage
// budget; negative deltas (releases from deletion) bypass the daily check and
// only reclaim storage. Today's consumed bandwidth is never refunded.
//
// The usage record is created lazily, zero-initialized, on first contact.
func (s *Service) Admit(ctx context.Context, principal string, deltaBytes int64) (Decision, error) {
	lock := s.lockFor(principal)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.Get(ctx, principal)
	if err != nil {
		return Admitted, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := s.now()
	if rec == nil {
		rec = &models.UsageRecord{Principal: principal, LastReset: now}
	}

	// Reset daily usage on the first touch after a calendar-day boundary.
	// The reset persists even when the admission itself is denied.
	dayRolled := !sameDay(rec.LastReset, now)
	if dayRolled {
		rec.DailyUsageBytes = 0
		rec.LastReset = now
	}

	if deltaBytes > 0 && rec.DailyUsageBytes+deltaBytes > s.dailyLimit {
		if dayRolled {
			if err := s.store.Put(ctx, rec); err != nil {
				return Admitted, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
		return DailyLimitExceeded, nil
	}

	if rec.TotalStoredBytes+deltaBytes > s.storageLimit {
		if dayRolled {
			if err := s.store.Put(ctx, rec); err != nil {
				return Admitted, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
		return StorageLimitExceeded, nil
	}

	if deltaBytes > 0 {
		rec.DailyUsageBytes += deltaBytes
	}
	rec.TotalStoredBytes += deltaBytes
	if rec.TotalStoredBytes < 0 {
		// A release can overshoot after reconciliation drift; the record
		// never goes negative.
		rec.TotalStoredBytes = 0
	}

	if err := s.store.Put(ctx, rec); err != nil {
		return Admitted, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Admitted, nil
}

// Query reports remaining storage and bandwidth for a principal. It is
// strictly read-only: no record is created or updated, and a pending daily
// reset is applied to the returned view only.
func (s *Service) Query(ctx context.Context, principal string) (models.Remaining, error) {
	rec, err := s.store.Get(ctx, principal)
	if err != nil {
		return models.Remaining{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if rec == nil {
		return models.Remaining{
			StorageBytes:   s.storageLimit,
			BandwidthBytes: s.dailyLimit,
		}, nil
	}

	daily := rec.DailyUsageBytes
	if !sameDay(rec.LastReset, s.now()) {
		daily = 0
	}

	return models.Remaining{
		StorageBytes:   s.storageLimit - rec.TotalStoredBytes,
		BandwidthBytes: s.dailyLimit - daily,
	}, nil
}

// SetAbsolute overwrites a principal's total stored bytes with a value
// recomputed from the object store. This is the reconciliation correction
// entry point; daily usage is left untouched.
func (s *Service) SetAbsolute(ctx context.Context, principal string, totalBytes int64) error {
	if totalBytes < 0 {
		totalBytes = 0
	}

	lock := s.lockFor(principal)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.Get(ctx, principal)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if rec == nil {
		rec = &models.UsageRecord{Principal: principal, LastReset: s.now()}
	}

	rec.TotalStoredBytes = totalBytes

	if err := s.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// sameDay reports whether two instants fall on the same UTC calendar day
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
