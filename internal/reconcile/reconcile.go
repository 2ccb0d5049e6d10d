package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultgate/vaultgate/internal/ledger"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/metrics"
	"github.com/vaultgate/vaultgate/pkg/models"
)

// ObjectLister enumerates namespaces and their live objects
type ObjectLister interface {
	ListNamespaces(ctx context.Context) ([]string, error)
	List(ctx context.Context, principal string) ([]*models.StoredObject, error)
}

// LedgerClient is the slice of the ledger surface the reconciler needs
type LedgerClient interface {
	Admit(ctx context.Context, principal string, deltaBytes int64) (ledger.Decision, error)
	SetAbsolute(ctx context.Context, principal string, totalBytes int64) error
}

// Reconciler heals ledger drift. It replays journaled release gaps and
// periodically recomputes every principal's stored total from the object
// store, issuing absolute corrections. Because the gateway only ever leaves
// the ledger over-counted, corrections can only hand capacity back.
type Reconciler struct {
	store    ObjectLister
	ledger   LedgerClient
	interval time.Duration
	log      *logging.Logger
}

// New creates a reconciler
func New(store ObjectLister, ledgerClient LedgerClient, interval time.Duration, log *logging.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		ledger:   ledgerClient,
		interval: interval,
		log:      log,
	}
}

// Run sweeps on a ticker until the context is cancelled
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.SweepOnce(ctx); err != nil {
				r.log.ErrorWithErr("reconciliation sweep failed", err)
			}
		}
	}
}

// SweepOnce recomputes stored totals for every namespace and corrects the
// ledger
func (r *Reconciler) SweepOnce(ctx context.Context) error {
	namespaces, err := r.store.ListNamespaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to list namespaces: %w", err)
	}

	for _, principal := range namespaces {
		objects, err := r.store.List(ctx, principal)
		if err != nil {
			r.log.WithPrincipal(principal).ErrorWithErr("failed to list namespace, skipping", err)
			continue
		}

		var total int64
		for _, obj := range objects {
			total += obj.SizeBytes
		}

		if err := r.ledger.SetAbsolute(ctx, principal, total); err != nil {
			r.log.WithPrincipal(principal).ErrorWithErr("failed to correct usage", err)
			continue
		}

		metrics.ReconciliationCorrections.Inc()
		r.log.WithPrincipal(principal).Infof("reconciled stored total to %d bytes", total)
	}

	return nil
}

// HandleGap replays a journaled release against the ledger. Returning an
// error leaves the gap on the queue for another attempt.
func (r *Reconciler) HandleGap(ctx context.Context, gap *models.ReconciliationGap) error {
	decision, err := r.ledger.Admit(ctx, gap.Principal, gap.DeltaBytes)
	if err != nil {
		return fmt.Errorf("failed to replay release: %w", err)
	}

	if decision != ledger.Admitted {
		// Releases bypass every limit check; anything else is a bug
		return fmt.Errorf("release replay denied with %s", decision)
	}

	r.log.WithPrincipal(gap.Principal).Infof("replayed release of %d bytes from %s",
		gap.DeltaBytes, gap.OccurredAt.Format(time.RFC3339))

	return nil
}
