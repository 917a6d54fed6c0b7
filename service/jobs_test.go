package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"github.com/mosaiclabs/mosaic-media-service/infra"
	"github.com/mosaiclabs/mosaic-media-service/infra/produce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeJobLedger struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*entity.ProcessingJob
	creates []uuid.UUID
}

func newFakeJobLedger() *fakeJobLedger {
	return &fakeJobLedger{jobs: make(map[uuid.UUID]*entity.ProcessingJob)}
}

func (f *fakeJobLedger) Create(ctx context.Context, job *entity.ProcessingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
	f.creates = append(f.creates, job.ID)
	return nil
}

func (f *fakeJobLedger) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*entity.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *job
	return &copied, nil
}

type fakeJobQueue struct {
	mu        sync.Mutex
	published []produce.StyleJobMessage
	ledger    *fakeJobLedger
	rowSeen   bool
}

func (f *fakeJobQueue) PublishStyleJob(ctx context.Context, msg produce.StyleJobMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// The job row must exist before the queue reference does, or a fast
	// worker could dequeue a job it cannot load.
	if f.ledger != nil {
		jobID, err := uuid.Parse(msg.JobID)
		if err == nil {
			f.ledger.mu.Lock()
			_, f.rowSeen = f.ledger.jobs[jobID]
			f.ledger.mu.Unlock()
		}
	}
	f.published = append(f.published, msg)
	return nil
}

func TestEnqueueWritesRowBeforePublish(t *testing.T) {
	ledger := newFakeJobLedger()
	queue := &fakeJobQueue{ledger: ledger}
	events := &fakeEvents{}

	svc := NewJobService(ledger, queue, events, infra.NewTestLogger(), testEnvConfig())

	asset := &entity.Asset{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		ProjectID: uuid.New(),
		Kind:      entity.AssetKindOriginal,
	}

	job, err := svc.Enqueue(context.Background(), asset, []byte(`{"style":"noir"}`), 0.5)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusQueued, job.Status)
	assert.Equal(t, 3, job.MaxAttempts)

	require.Len(t, queue.published, 1)
	assert.True(t, queue.rowSeen)
	assert.Equal(t, job.ID.String(), queue.published[0].JobID)

	published := events.all()
	require.Len(t, published, 1)
	assert.Equal(t, entity.JobTopic(job.ID), published[0].Topic)
	assert.Equal(t, string(entity.JobStatusQueued), published[0].Event.Payload["status"])
}

func TestEnqueueRejectsEmptyStyleParams(t *testing.T) {
	svc := NewJobService(newFakeJobLedger(), &fakeJobQueue{}, &fakeEvents{}, infra.NewTestLogger(), testEnvConfig())

	var validationErr *ValidationError
	_, err := svc.Enqueue(context.Background(), &entity.Asset{ID: uuid.New()}, nil, 1)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "style_params", validationErr.Field)
}

func TestGetJobOwnership(t *testing.T) {
	ledger := newFakeJobLedger()
	svc := NewJobService(ledger, &fakeJobQueue{}, &fakeEvents{}, infra.NewTestLogger(), testEnvConfig())

	ownerID := uuid.New()
	job := &entity.ProcessingJob{ID: uuid.New(), OwnerID: ownerID, Status: entity.JobStatusQueued}
	require.NoError(t, ledger.Create(context.Background(), job))

	found, err := svc.GetJob(context.Background(), job.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, found.ID)

	var notFoundErr *NotFoundError
	_, err = svc.GetJob(context.Background(), job.ID, uuid.New())
	require.ErrorAs(t, err, &notFoundErr)
}
