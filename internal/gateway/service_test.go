package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultgate/vaultgate/internal/ledger"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/storage"
	"github.com/vaultgate/vaultgate/pkg/models"
)

type fakeAdmitter struct {
	decision  ledger.Decision
	admitErr  error
	remaining models.Remaining
	queryErr  error
	admits    []int64
}

func (f *fakeAdmitter) Admit(ctx context.Context, principal string, deltaBytes int64) (ledger.Decision, error) {
	if f.admitErr != nil {
		return ledger.Admitted, f.admitErr
	}
	f.admits = append(f.admits, deltaBytes)
	if deltaBytes < 0 {
		// Releases always pass
		return ledger.Admitted, nil
	}
	return f.decision, nil
}

func (f *fakeAdmitter) Query(ctx context.Context, principal string) (models.Remaining, error) {
	return f.remaining, f.queryErr
}

type fakeStore struct {
	objects map[string]*models.StoredObject
	putErr  error
	deletes []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]*models.StoredObject)}
}

func (f *fakeStore) Put(ctx context.Context, principal, name string, reader io.Reader, size int64, contentType, fileID string) (*models.StoredObject, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	obj := &models.StoredObject{
		Principal:   principal,
		Name:        name,
		SizeBytes:   size,
		ContentType: contentType,
		FileID:      fileID,
		Generation:  "gen-1",
	}
	f.objects[models.ObjectKey(principal, name)] = obj
	return obj, nil
}

func (f *fakeStore) Open(ctx context.Context, principal, name, generation string) (io.ReadCloser, *models.StoredObject, error) {
	obj, ok := f.objects[models.ObjectKey(principal, name)]
	if !ok {
		return nil, nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader("payload")), obj, nil
}

func (f *fakeStore) Stat(ctx context.Context, principal, name, generation string) (*models.StoredObject, error) {
	obj, ok := f.objects[models.ObjectKey(principal, name)]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return obj, nil
}

func (f *fakeStore) FindByFileID(ctx context.Context, principal, fileID string) (*models.StoredObject, error) {
	for _, obj := range f.objects {
		if obj.Principal == principal && obj.FileID == fileID {
			return obj, nil
		}
	}
	return nil, storage.ErrObjectNotFound
}

func (f *fakeStore) Delete(ctx context.Context, principal, name string) error {
	key := models.ObjectKey(principal, name)
	if _, ok := f.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(f.objects, key)
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeStore) List(ctx context.Context, principal string) ([]*models.StoredObject, error) {
	out := []*models.StoredObject{}
	for _, obj := range f.objects {
		if obj.Principal == principal {
			out = append(out, obj)
		}
	}
	return out, nil
}

type fakeJournal struct {
	gaps []*models.ReconciliationGap
	err  error
}

func (f *fakeJournal) PublishGap(ctx context.Context, gap *models.ReconciliationGap) error {
	if f.err != nil {
		return f.err
	}
	f.gaps = append(f.gaps, gap)
	return nil
}

func newTestService(t *testing.T, admitter Admitter, store ObjectStore, journal GapJournal) *Service {
	log, err := logging.NewDefaultLogger()
	require.NoError(t, err)
	return New(admitter, store, journal, nil, log)
}

func TestUploadAdmitted(t *testing.T) {
	admitter := &fakeAdmitter{decision: ledger.Admitted}
	store := newFakeStore()
	svc := newTestService(t, admitter, store, nil)

	obj, err := svc.Upload(context.Background(), "alice", "a.mp4",
		bytes.NewReader([]byte("data")), 30<<20, "video/mp4")

	require.NoError(t, err)
	assert.Equal(t, "alice", obj.Principal)
	assert.NotEmpty(t, obj.FileID)
	assert.Equal(t, []int64{30 << 20}, admitter.admits)
	assert.Len(t, store.objects, 1)
}

func TestUploadDeniedLeavesStoreUntouched(t *testing.T) {
	tests := []struct {
		name     string
		decision ledger.Decision
		wantErr  error
	}{
		{"daily limit", ledger.DailyLimitExceeded, ErrQuotaDaily},
		{"storage limit", ledger.StorageLimitExceeded, ErrQuotaStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admitter := &fakeAdmitter{decision: tt.decision}
			store := newFakeStore()
			svc := newTestService(t, admitter, store, nil)

			_, err := svc.Upload(context.Background(), "alice", "a.mp4",
				bytes.NewReader(nil), 30<<20, "video/mp4")

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, store.objects, "denied upload must not write")
		})
	}
}

func TestUploadFailsClosedWhenLedgerDown(t *testing.T) {
	admitter := &fakeAdmitter{admitErr: ledger.ErrUnavailable}
	store := newFakeStore()
	svc := newTestService(t, admitter, store, nil)

	_, err := svc.Upload(context.Background(), "alice", "a.mp4",
		bytes.NewReader(nil), 30<<20, "video/mp4")

	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Empty(t, store.objects)
}

func TestUploadWriteFailureReleasesAdmission(t *testing.T) {
	admitter := &fakeAdmitter{decision: ledger.Admitted}
	store := newFakeStore()
	store.putErr = errors.New("backend down")
	svc := newTestService(t, admitter, store, nil)

	_, err := svc.Upload(context.Background(), "alice", "a.mp4",
		bytes.NewReader(nil), 30<<20, "video/mp4")

	require.Error(t, err)
	// Admission then the compensating release
	assert.Equal(t, []int64{30 << 20, -(30 << 20)}, admitter.admits)
}

func TestStreamByName(t *testing.T) {
	admitter := &fakeAdmitter{decision: ledger.Admitted}
	store := newFakeStore()
	svc := newTestService(t, admitter, store, nil)

	_, err := svc.Upload(context.Background(), "alice", "a.mp4",
		bytes.NewReader([]byte("data")), 4, "video/mp4")
	require.NoError(t, err)

	reader, obj, err := svc.Stream(context.Background(), "alice", "a.mp4", "", "")
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "a.mp4", obj.Name)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestStreamByFileID(t *testing.T) {
	admitter := &fakeAdmitter{decision: ledger.Admitted}
	store := newFakeStore()
	svc := newTestService(t, admitter, store, nil)

	obj, err := svc.Upload(context.Background(), "alice", "a.mp4",
		bytes.NewReader([]byte("data")), 4, "video/mp4")
	require.NoError(t, err)

	reader, found, err := svc.Stream(context.Background(), "alice", "", obj.FileID, "")
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "a.mp4", found.Name)
}

func TestStreamNotFound(t *testing.T) {
	svc := newTestService(t, &fakeAdmitter{}, newFakeStore(), nil)

	_, _, err := svc.Stream(context.Background(), "alice", "missing.mp4", "", "")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, _, err = svc.Stream(context.Background(), "alice", "", "no-such-id", "")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDeleteReleasesBytes(t *testing.T) {
	admitter := &fakeAdmitter{decision: ledger.Admitted}
	store := newFakeStore()
	svc := newTestService(t, admitter, store, nil)

	_, err := svc.Upload(context.Background(), "alice", "a.mp4",
		bytes.NewReader(nil), 30<<20, "video/mp4")
	require.NoError(t, err)

	obj, err := svc.Delete(context.Background(), "alice", "a.mp4")
	require.NoError(t, err)

	assert.Equal(t, int64(30<<20), obj.SizeBytes)
	assert.Equal(t, []int64{30 << 20, -(30 << 20)}, admitter.admits)
	assert.Empty(t, store.objects)
}

func TestDeleteNotFound(t *testing.T) {
	svc := newTestService(t, &fakeAdmitter{}, newFakeStore(), nil)

	_, err := svc.Delete(context.Background(), "alice", "missing.mp4")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDeleteJournalsGapWhenLedgerDown(t *testing.T) {
	admitter := &fakeAdmitter{decision: ledger.Admitted}
	store := newFakeStore()
	journal := &fakeJournal{}
	svc := newTestService(t, admitter, store, journal)

	_, err := svc.Upload(context.Background(), "alice", "a.mp4",
		bytes.NewReader(nil), 30<<20, "video/mp4")
	require.NoError(t, err)

	// Ledger goes down between upload and delete
	admitter.admitErr = ledger.ErrUnavailable

	obj, err := svc.Delete(context.Background(), "alice", "a.mp4")
	require.NoError(t, err, "delete succeeds even when the release fails")
	assert.Equal(t, int64(30<<20), obj.SizeBytes)
	assert.Empty(t, store.objects, "object is gone regardless")

	require.Len(t, journal.gaps, 1)
	assert.Equal(t, "alice", journal.gaps[0].Principal)
	assert.Equal(t, int64(-(30<<20)), journal.gaps[0].DeltaBytes)
	assert.WithinDuration(t, time.Now(), journal.gaps[0].OccurredAt, time.Minute)
}

func TestDeleteNamespace(t *testing.T) {
	admitter := &fakeAdmitter{decision: ledger.Admitted}
	store := newFakeStore()
	svc := newTestService(t, admitter, store, nil)

	for _, name := range []string{"a.mp4", "b.mp4"} {
		_, err := svc.Upload(context.Background(), "alice", name,
			bytes.NewReader(nil), 10<<20, "video/mp4")
		require.NoError(t, err)
	}

	deleted, err := svc.DeleteNamespace(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, 2, deleted)
	assert.Empty(t, store.objects)
	// Two admissions then one combined release
	assert.Equal(t, []int64{10 << 20, 10 << 20, -(20 << 20)}, admitter.admits)
}

func TestDeleteNamespaceEmpty(t *testing.T) {
	svc := newTestService(t, &fakeAdmitter{}, newFakeStore(), nil)

	_, err := svc.DeleteNamespace(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestList(t *testing.T) {
	admitter := &fakeAdmitter{decision: ledger.Admitted}
	store := newFakeStore()
	svc := newTestService(t, admitter, store, nil)

	objects, err := svc.List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, objects)

	_, err = svc.Upload(context.Background(), "alice", "a.mp4",
		bytes.NewReader(nil), 1<<20, "video/mp4")
	require.NoError(t, err)

	objects, err = svc.List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestUsage(t *testing.T) {
	admitter := &fakeAdmitter{
		remaining: models.Remaining{StorageBytes: 20 << 20, BandwidthBytes: 70 << 20},
	}
	svc := newTestService(t, admitter, newFakeStore(), nil)

	remaining, err := svc.Usage(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(20<<20), remaining.StorageBytes)
	assert.Equal(t, int64(70<<20), remaining.BandwidthBytes)
}

func TestUsageLedgerDown(t *testing.T) {
	admitter := &fakeAdmitter{queryErr: ledger.ErrUnavailable}
	svc := newTestService(t, admitter, newFakeStore(), nil)

	_, err := svc.Usage(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}
