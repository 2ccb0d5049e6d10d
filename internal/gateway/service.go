package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/vaultgate/vaultgate/internal/ledger"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/metrics"
	"github.com/vaultgate/vaultgate/internal/storage"
	"github.com/vaultgate/vaultgate/pkg/models"
)

var (
	// ErrQuotaDaily is returned when an upload would exceed the daily quota
	ErrQuotaDaily = errors.New("daily quota exceeded")
	// ErrQuotaStorage is returned when an upload would exceed stored capacity
	ErrQuotaStorage = errors.New("storage quota exceeded")
	// ErrObjectNotFound is returned when the requested object is absent
	ErrObjectNotFound = errors.New("object not found")
	// ErrLedgerUnavailable is returned when the quota ledger cannot be
	// reached on a path that must fail closed.
	ErrLedgerUnavailable = errors.New("quota ledger unavailable")
)

const (
	listingCacheTTL = time.Minute
	usageCacheTTL   = 30 * time.Second
)

// Admitter is the slice of the ledger surface the gateway needs
type Admitter interface {
	Admit(ctx context.Context, principal string, deltaBytes int64) (ledger.Decision, error)
	Query(ctx context.Context, principal string) (models.Remaining, error)
}

// ObjectStore is the object storage surface the gateway orchestrates
type ObjectStore interface {
	Put(ctx context.Context, principal, name string, reader io.Reader, size int64, contentType, fileID string) (*models.StoredObject, error)
	Open(ctx context.Context, principal, name, generation string) (io.ReadCloser, *models.StoredObject, error)
	Stat(ctx context.Context, principal, name, generation string) (*models.StoredObject, error)
	FindByFileID(ctx context.Context, principal, fileID string) (*models.StoredObject, error)
	Delete(ctx context.Context, principal, name string) error
	List(ctx context.Context, principal string) ([]*models.StoredObject, error)
}

// GapJournal records quota releases that could not reach the ledger so the
// reconciler can replay them
type GapJournal interface {
	PublishGap(ctx context.Context, gap *models.ReconciliationGap) error
}

// ListingCache is the advisory read cache over listings and usage snapshots
type ListingCache interface {
	GetListing(ctx context.Context, principal string) ([]*models.StoredObject, error)
	SetListing(ctx context.Context, principal string, objects []*models.StoredObject, ttl time.Duration) error
	InvalidateListing(ctx context.Context, principal string) error
	GetUsage(ctx context.Context, principal string) (*models.Remaining, error)
	SetUsage(ctx context.Context, principal string, remaining *models.Remaining, ttl time.Duration) error
	InvalidateUsage(ctx context.Context, principal string) error
}

// Service orchestrates the upload, stream and delete flows. Every mutation
// runs token check, quota admission and object mutation in that order; the
// ordering is what keeps the ledger an over-approximation of reality, so
// reconciliation only ever hands capacity back.
type Service struct {
	ledger  Admitter
	store   ObjectStore
	journal GapJournal
	cache   ListingCache
	log     *logging.Logger

	newFileID func() string
}

// New creates a gateway service. journal and cache may be nil; without a
// journal, failed releases are only logged.
func New(admitter Admitter, store ObjectStore, journal GapJournal, cache ListingCache, log *logging.Logger) *Service {
	return &Service{
		ledger:    admitter,
		store:     store,
		journal:   journal,
		cache:     cache,
		log:       log,
		newFileID: uuid.NewString,
	}
}

// Upload admits size bytes against the principal's quota, then writes the
// object. If the ledger is unreachable the upload fails closed. If the write
// fails after admission, a compensating release is issued.
func (s *Service) Upload(ctx context.Context, principal, name string, reader io.Reader, size int64, contentType string) (*models.StoredObject, error) {
	decision, err := s.ledger.Admit(ctx, principal, size)
	if err != nil {
		metrics.LedgerUnavailableTotal.Inc()
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	metrics.RecordAdmitDecision(decision.String())
	s.log.LogAdmitDecision(principal, size, decision.String())

	switch decision {
	case ledger.DailyLimitExceeded:
		metrics.RecordUpload("daily_limit_exceeded", size)
		return nil, ErrQuotaDaily
	case ledger.StorageLimitExceeded:
		metrics.RecordUpload("storage_limit_exceeded", size)
		return nil, ErrQuotaStorage
	}

	obj, err := s.store.Put(ctx, principal, name, reader, size, contentType, s.newFileID())
	if err != nil {
		// Admission already counted these bytes; hand them back
		s.release(ctx, principal, size)
		metrics.RecordUpload("backend_error", size)
		return nil, fmt.Errorf("failed to store object: %w", err)
	}

	s.invalidate(ctx, principal)
	metrics.RecordUpload("admitted", size)

	return obj, nil
}

// Stream opens an object for reading. When fileID is set the object is
// resolved by its upload-time ID; otherwise by name, optionally pinned to a
// generation.
func (s *Service) Stream(ctx context.Context, principal, name, fileID, generation string) (io.ReadCloser, *models.StoredObject, error) {
	if fileID != "" {
		obj, err := s.store.FindByFileID(ctx, principal, fileID)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				metrics.RecordStream("not_found")
				return nil, nil, ErrObjectNotFound
			}
			metrics.RecordStream("backend_error")
			return nil, nil, err
		}
		name = obj.Name
		generation = obj.Generation
	}

	reader, obj, err := s.store.Open(ctx, principal, name, generation)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			metrics.RecordStream("not_found")
			return nil, nil, ErrObjectNotFound
		}
		metrics.RecordStream("backend_error")
		return nil, nil, err
	}

	metrics.RecordStream("success")
	return reader, obj, nil
}

// Delete removes an object and releases its bytes back to the quota. The
// object is removed first: a failed release leaves the ledger over-counted,
// which the journaled gap later corrects.
func (s *Service) Delete(ctx context.Context, principal, name string) (*models.StoredObject, error) {
	obj, err := s.store.Stat(ctx, principal, name, "")
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}

	if err := s.store.Delete(ctx, principal, name); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to delete object: %w", err)
	}

	s.release(ctx, principal, obj.SizeBytes)
	s.invalidate(ctx, principal)

	return obj, nil
}

// DeleteNamespace removes every object in a principal's namespace and
// releases the freed bytes in one admission. An empty namespace is reported
// as not found.
func (s *Service) DeleteNamespace(ctx context.Context, principal string) (int, error) {
	objects, err := s.store.List(ctx, principal)
	if err != nil {
		return 0, fmt.Errorf("failed to list namespace: %w", err)
	}
	if len(objects) == 0 {
		return 0, ErrObjectNotFound
	}

	var deleted int
	var freed int64
	for _, obj := range objects {
		if err := s.store.Delete(ctx, principal, obj.Name); err != nil {
			s.log.WithPrincipal(principal).WithObject(obj.Name).
				ErrorWithErr("failed to delete object during namespace purge", err)
			continue
		}
		deleted++
		freed += obj.SizeBytes
	}

	if freed > 0 {
		s.release(ctx, principal, freed)
	}
	s.invalidate(ctx, principal)

	if deleted == 0 {
		return 0, fmt.Errorf("failed to delete any of %d objects", len(objects))
	}

	return deleted, nil
}

// List enumerates a principal's namespace, served from cache when possible
func (s *Service) List(ctx context.Context, principal string) ([]*models.StoredObject, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetListing(ctx, principal); err == nil && cached != nil {
			return cached, nil
		}
	}

	objects, err := s.store.List(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespace: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetListing(ctx, principal, objects, listingCacheTTL); err != nil {
			s.log.WithPrincipal(principal).ErrorWithErr("failed to cache listing", err)
		}
	}

	return objects, nil
}

// Usage reads the principal's remaining storage and bandwidth from the
// ledger, served from cache when possible
func (s *Service) Usage(ctx context.Context, principal string) (models.Remaining, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetUsage(ctx, principal); err == nil && cached != nil {
			return *cached, nil
		}
	}

	remaining, err := s.ledger.Query(ctx, principal)
	if err != nil {
		metrics.LedgerUnavailableTotal.Inc()
		return models.Remaining{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	if s.cache != nil {
		if err := s.cache.SetUsage(ctx, principal, &remaining, usageCacheTTL); err != nil {
			s.log.WithPrincipal(principal).ErrorWithErr("failed to cache usage", err)
		}
	}

	return remaining, nil
}

// release hands bytes back to the ledger. Releases are best effort: on
// failure the gap is journaled for the reconciler and the request proceeds.
func (s *Service) release(ctx context.Context, principal string, sizeBytes int64) {
	decision, err := s.ledger.Admit(ctx, principal, -sizeBytes)
	if err == nil && decision == ledger.Admitted {
		return
	}
	if err == nil {
		err = fmt.Errorf("release denied with %s", decision)
	}

	s.log.LogReconciliationGap(principal, -sizeBytes, err)

	if s.journal == nil {
		return
	}

	gap := &models.ReconciliationGap{
		Principal:  principal,
		DeltaBytes: -sizeBytes,
		OccurredAt: time.Now(),
	}
	if jerr := s.journal.PublishGap(ctx, gap); jerr != nil {
		s.log.WithPrincipal(principal).ErrorWithErr("failed to journal reconciliation gap", jerr)
		return
	}
	metrics.ReconciliationGapsPublished.Inc()
}

// invalidate drops cached views touched by a mutation
func (s *Service) invalidate(ctx context.Context, principal string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateListing(ctx, principal); err != nil {
		s.log.WithPrincipal(principal).ErrorWithErr("failed to invalidate listing cache", err)
	}
	if err := s.cache.InvalidateUsage(ctx, principal); err != nil {
		s.log.WithPrincipal(principal).ErrorWithErr("failed to invalidate usage cache", err)
	}
}
