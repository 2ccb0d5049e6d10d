package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultgate/vaultgate/internal/ledger"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/pkg/models"
)

type fakeLister struct {
	namespaces []string
	objects    map[string][]*models.StoredObject
	listErr    error
}

func (f *fakeLister) ListNamespaces(ctx context.Context) ([]string, error) {
	return f.namespaces, f.listErr
}

func (f *fakeLister) List(ctx context.Context, principal string) ([]*models.StoredObject, error) {
	return f.objects[principal], nil
}

type fakeLedger struct {
	absolutes map[string]int64
	admits    []int64
	admitErr  error
	setErr    error
}

func (f *fakeLedger) Admit(ctx context.Context, principal string, deltaBytes int64) (ledger.Decision, error) {
	if f.admitErr != nil {
		return ledger.Admitted, f.admitErr
	}
	f.admits = append(f.admits, deltaBytes)
	return ledger.Admitted, nil
}

func (f *fakeLedger) SetAbsolute(ctx context.Context, principal string, totalBytes int64) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.absolutes == nil {
		f.absolutes = make(map[string]int64)
	}
	f.absolutes[principal] = totalBytes
	return nil
}

func newTestReconciler(t *testing.T, store ObjectLister, lc LedgerClient) *Reconciler {
	log, err := logging.NewDefaultLogger()
	require.NoError(t, err)
	return New(store, lc, time.Minute, log)
}

func TestSweepOnce(t *testing.T) {
	store := &fakeLister{
		namespaces: []string{"alice", "bob"},
		objects: map[string][]*models.StoredObject{
			"alice": {
				{Name: "a.mp4", SizeBytes: 10 << 20},
				{Name: "b.mp4", SizeBytes: 20 << 20},
			},
			"bob": {},
		},
	}
	lc := &fakeLedger{}

	r := newTestReconciler(t, store, lc)

	require.NoError(t, r.SweepOnce(context.Background()))

	assert.Equal(t, int64(30<<20), lc.absolutes["alice"])
	assert.Equal(t, int64(0), lc.absolutes["bob"], "empty namespaces reconcile to zero")
}

func TestSweepOnceListFailure(t *testing.T) {
	store := &fakeLister{listErr: errors.New("store down")}
	lc := &fakeLedger{}

	r := newTestReconciler(t, store, lc)

	assert.Error(t, r.SweepOnce(context.Background()))
}

func TestSweepOnceSkipsFailedCorrections(t *testing.T) {
	store := &fakeLister{
		namespaces: []string{"alice"},
		objects: map[string][]*models.StoredObject{
			"alice": {{Name: "a.mp4", SizeBytes: 5 << 20}},
		},
	}
	lc := &fakeLedger{setErr: errors.New("ledger down")}

	r := newTestReconciler(t, store, lc)

	// A failed correction is logged and skipped, not fatal
	assert.NoError(t, r.SweepOnce(context.Background()))
}

func TestHandleGap(t *testing.T) {
	lc := &fakeLedger{}
	r := newTestReconciler(t, &fakeLister{}, lc)

	gap := &models.ReconciliationGap{
		Principal:  "alice",
		DeltaBytes: -(30 << 20),
		OccurredAt: time.Now(),
	}

	require.NoError(t, r.HandleGap(context.Background(), gap))
	require.Len(t, lc.admits, 1)
	assert.Equal(t, int64(-(30 << 20)), lc.admits[0])
}

func TestHandleGapLedgerStillDown(t *testing.T) {
	lc := &fakeLedger{admitErr: ledger.ErrUnavailable}
	r := newTestReconciler(t, &fakeLister{}, lc)

	gap := &models.ReconciliationGap{
		Principal:  "alice",
		DeltaBytes: -(30 << 20),
		OccurredAt: time.Now(),
	}

	// Error keeps the gap queued for another attempt
	assert.Error(t, r.HandleGap(context.Background(), gap))
}
