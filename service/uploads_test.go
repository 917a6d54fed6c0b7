package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"github.com/mosaiclabs/mosaic-media-service/infra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeAssetStore struct {
	mu     sync.Mutex
	assets map[uuid.UUID]*entity.Asset
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{assets: make(map[uuid.UUID]*entity.Asset)}
}

func (f *fakeAssetStore) FindByID(ctx context.Context, id uuid.UUID) (*entity.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	asset, ok := f.assets[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *asset
	return &copied, nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entity.UploadSession
	parts    map[uuid.UUID]map[int]entity.UploadPart
	assets   *fakeAssetStore
}

func newFakeSessionStore(assets *fakeAssetStore) *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[uuid.UUID]*entity.UploadSession),
		parts:    make(map[uuid.UUID]map[int]entity.UploadPart),
		assets:   assets,
	}
}

func (f *fakeSessionStore) Create(ctx context.Context, session *entity.UploadSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionStore) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*entity.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok || session.OwnerID != ownerID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) RegisterPart(ctx context.Context, part *entity.UploadPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	byNumber, ok := f.parts[part.SessionID]
	if !ok {
		byNumber = make(map[int]entity.UploadPart)
		f.parts[part.SessionID] = byNumber
	}
	byNumber[part.PartNumber] = *part
	return nil
}

func (f *fakeSessionStore) CountParts(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.parts[sessionID])), nil
}

func (f *fakeSessionStore) ListPartsOrdered(ctx context.Context, sessionID uuid.UUID) ([]entity.UploadPart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := make([]entity.UploadPart, 0, len(f.parts[sessionID]))
	for _, p := range f.parts[sessionID] {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

func (f *fakeSessionStore) MarkInProgress(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[id]; ok && session.Status == entity.UploadStatusPending {
		session.Status = entity.UploadStatusInProgress
	}
	return nil
}

func (f *fakeSessionStore) FinalizeCompletion(ctx context.Context, sessionID uuid.UUID, asset *entity.Asset) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if session.Status.IsTerminal() {
		return false, nil
	}
	copied := *asset
	f.assets.mu.Lock()
	f.assets.assets[asset.ID] = &copied
	f.assets.mu.Unlock()
	session.Status = entity.UploadStatusCompleted
	assetID := asset.ID
	session.AssetID = &assetID
	return true, nil
}

func (f *fakeSessionStore) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok || session.Status.IsTerminal() {
		return false, nil
	}
	session.Status = entity.UploadStatusCancelled
	return true, nil
}

func (f *fakeSessionStore) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok || session.Status.IsTerminal() {
		return false, nil
	}
	session.Status = entity.UploadStatusFailed
	return true, nil
}

type fakeGateway struct {
	mu               sync.Mutex
	completeErr      error
	completeFailures int
	completeCalls    int
	abortCalls       int
	createdIDs       int
}

func (f *fakeGateway) GenerateUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	return "https://storage.test/put/" + key, nil
}

func (f *fakeGateway) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdIDs++
	return fmt.Sprintf("mp-upload-%d", f.createdIDs), nil
}

func (f *fakeGateway) GeneratePartURLs(ctx context.Context, key, uploadID string, partCount int, expires time.Duration) ([]entity.PartURL, error) {
	urls := make([]entity.PartURL, 0, partCount)
	for i := 1; i <= partCount; i++ {
		urls = append(urls, entity.PartURL{PartNumber: i, URL: fmt.Sprintf("https://storage.test/part/%s/%d", uploadID, i)})
	}
	return urls, nil
}

func (f *fakeGateway) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []entity.PartETag) (entity.FinalizedObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeFailures > 0 {
		f.completeFailures--
		return entity.FinalizedObject{}, errors.New("storage hiccup")
	}
	if f.completeErr != nil {
		return entity.FinalizedObject{}, f.completeErr
	}
	return entity.FinalizedObject{Location: "https://storage.test/" + key, ETag: "final-etag"}, nil
}

func (f *fakeGateway) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortCalls++
	return nil
}

func (f *fakeGateway) GenerateDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://storage.test/get/" + key, nil
}

type recordedEvent struct {
	Topic string
	Event entity.NotificationEvent
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) Publish(ctx context.Context, topic string, event entity.NotificationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Topic: topic, Event: event})
}

func (f *fakeEvents) all() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

type fakeProgressCache struct {
	mu     sync.Mutex
	values map[string]entity.ProgressInfo
	counts map[string]int64
	gets   int
	hits   int
}

func newFakeProgressCache() *fakeProgressCache {
	return &fakeProgressCache{
		values: make(map[string]entity.ProgressInfo),
		counts: make(map[string]int64),
	}
}

func (f *fakeProgressCache) Get(ctx context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	v, ok := f.values[key]
	if !ok {
		return errors.New("cache miss")
	}
	f.hits++
	if p, ok := dest.(*entity.ProgressInfo); ok {
		*p = v
	}
	return nil
}

func (f *fakeProgressCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := value.(*entity.ProgressInfo); ok {
		f.values[key] = *p
	}
	return nil
}

func (f *fakeProgressCache) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeProgressCache) Increment(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func testEnvConfig() *config.EnvConfig {
	cfg := &config.EnvConfig{}
	cfg.Upload.Bucket = "media-test"
	cfg.Upload.SinglePartThreshold = 1000
	cfg.Upload.ChunkSize = 1000
	cfg.Upload.SessionTTL = 24 * time.Hour
	cfg.Upload.URLTTL = time.Hour
	cfg.Upload.DownloadURLTTL = 15 * time.Minute
	cfg.Worker.MaxAttempts = 3
	cfg.Worker.BackoffBase = 2 * time.Second
	cfg.Worker.LeaseTTL = 5 * time.Minute
	return cfg
}

type uploadFixture struct {
	service  *UploadSessionService
	sessions *fakeSessionStore
	assets   *fakeAssetStore
	gateway  *fakeGateway
	events   *fakeEvents
	cache    *fakeProgressCache
}

func newUploadFixture(t *testing.T) *uploadFixture {
	t.Helper()
	assets := newFakeAssetStore()
	sessions := newFakeSessionStore(assets)
	gateway := &fakeGateway{}
	events := &fakeEvents{}
	cache := newFakeProgressCache()
	svc := NewUploadSessionService(sessions, assets, nil, gateway, events, cache, infra.NewTestLogger(), testEnvConfig())
	return &uploadFixture{service: svc, sessions: sessions, assets: assets, gateway: gateway, events: events, cache: cache}
}

func TestCreateSessionSinglePart(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "photo.jpg",
		FileSize:  900,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, descriptor.TotalParts)
	assert.NotEmpty(t, descriptor.UploadURL)
	assert.Empty(t, descriptor.PartURLs)

	session, err := fx.sessions.FindByIDAndOwner(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, entity.UploadStatusPending, session.Status)
	assert.Empty(t, session.StorageUploadID)
}

func TestCreateSessionMultipart(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "video.mp4",
		FileSize:  2500,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, descriptor.TotalParts)
	assert.Len(t, descriptor.PartURLs, 3)
	assert.Empty(t, descriptor.UploadURL)

	session, err := fx.sessions.FindByIDAndOwner(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.NotEmpty(t, session.StorageUploadID)
	assert.Equal(t, int64(1000), session.ChunkSize)
}

func TestCreateSessionValidation(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	var validationErr *ValidationError

	_, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{FileName: "", FileSize: 10})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "filename", validationErr.Field)

	_, err = fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{FileName: "a.bin", FileSize: 0})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "file_size", validationErr.Field)
}

func TestRegisterPartIdempotent(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "video.mp4",
		FileSize:  2500,
	})
	require.NoError(t, err)

	progress, err := fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, 1, "etag-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.UploadedParts)

	// Same part, same etag: the count does not move.
	progress, err = fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, 1, "etag-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.UploadedParts)

	// Same part, new etag: superseded, still one row.
	progress, err = fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, 1, "etag-1b", 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.UploadedParts)

	parts, err := fx.sessions.ListPartsOrdered(context.Background(), descriptor.UploadID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "etag-1b", parts[0].ETag)

	session, err := fx.sessions.FindByIDAndOwner(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, entity.UploadStatusInProgress, session.Status)
}

func TestRegisterPartValidation(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "video.mp4",
		FileSize:  2500,
	})
	require.NoError(t, err)

	var validationErr *ValidationError

	_, err = fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, 0, "etag", 10)
	require.ErrorAs(t, err, &validationErr)

	_, err = fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, 4, "etag", 10)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "part_number", validationErr.Field)

	_, err = fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, 1, "", 10)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "etag", validationErr.Field)

	var notFoundErr *NotFoundError
	_, err = fx.service.RegisterPart(context.Background(), uuid.New(), ownerID, 1, "etag", 10)
	require.ErrorAs(t, err, &notFoundErr)
}

func TestCompleteMultipart(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()
	projectID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: projectID,
		FileName:  "video.mp4",
		FileSize:  2500,
	})
	require.NoError(t, err)

	sizes := []int64{1000, 1000, 500}
	for i, size := range sizes {
		_, err := fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, i+1, fmt.Sprintf("etag-%d", i+1), size)
		require.NoError(t, err)
	}

	asset, err := fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)

	// Finalized exactly once and the asset size is the sum of part sizes.
	assert.Equal(t, 1, fx.gateway.completeCalls)
	assert.Equal(t, int64(2500), asset.SizeBytes)
	assert.Equal(t, entity.AssetKindOriginal, asset.Kind)

	session, err := fx.sessions.FindByIDAndOwner(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, entity.UploadStatusCompleted, session.Status)
	require.NotNil(t, session.AssetID)
	assert.Equal(t, asset.ID, *session.AssetID)
}

func TestCompleteIncompleteUpload(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "video.mp4",
		FileSize:  2500,
	})
	require.NoError(t, err)

	_, err = fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, 1, "etag-1", 1000)
	require.NoError(t, err)

	_, err = fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, 1, conflictErr.UploadedParts)
	assert.Equal(t, 3, conflictErr.TotalParts)

	// The mismatch is detected before any storage call.
	assert.Equal(t, 0, fx.gateway.completeCalls)
}

func TestCompleteIsIdempotent(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "video.mp4",
		FileSize:  2000,
	})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		_, err := fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, i, fmt.Sprintf("etag-%d", i), 1000)
		require.NoError(t, err)
	}

	first, err := fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)

	second, err := fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, fx.gateway.completeCalls)
}

func TestCompleteStorageFailureLeavesSessionRetryable(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "video.mp4",
		FileSize:  2000,
	})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		_, err := fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, i, fmt.Sprintf("etag-%d", i), 1000)
		require.NoError(t, err)
	}

	fx.gateway.completeErr = errors.New("storage unavailable")
	_, err = fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.True(t, storageErr.Retryable)

	// The finalize was retried in-call before giving up.
	assert.Equal(t, 3, fx.gateway.completeCalls)

	session, err := fx.sessions.FindByIDAndOwner(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, entity.UploadStatusInProgress, session.Status)

	// Retrying after the store recovers succeeds.
	fx.gateway.completeErr = nil
	asset, err := fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, asset.ID)
}

func TestCompleteRetriesTransientFinalize(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "video.mp4",
		FileSize:  2000,
	})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		_, err := fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, i, fmt.Sprintf("etag-%d", i), 1000)
		require.NoError(t, err)
	}

	// Two hiccups are absorbed inside a single complete call.
	fx.gateway.completeFailures = 2
	asset, err := fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, 3, fx.gateway.completeCalls)
	assert.NotEqual(t, uuid.Nil, asset.ID)
}

func TestCompleteUnrecoverableFinalizeFailsSession(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()
	projectID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: projectID,
		FileName:  "video.mp4",
		FileSize:  2000,
	})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		_, err := fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, i, fmt.Sprintf("etag-%d", i), 1000)
		require.NoError(t, err)
	}

	fx.gateway.completeErr = fmt.Errorf("complete for key: %w", infra.ErrMultipartUploadGone)
	_, err = fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.False(t, storageErr.Retryable)

	// No point retrying a finalize the store can never satisfy.
	assert.Equal(t, 1, fx.gateway.completeCalls)

	session, err := fx.sessions.FindByIDAndOwner(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, entity.UploadStatusFailed, session.Status)

	var failureEvent *recordedEvent
	for _, e := range fx.events.all() {
		if e.Topic == entity.ProjectTopic(projectID) && e.Event.Type == entity.EventError {
			copied := e
			failureEvent = &copied
		}
	}
	require.NotNil(t, failureEvent)
	assert.Equal(t, string(entity.UploadStatusFailed), failureEvent.Event.Payload["status"])

	// The failure is terminal.
	var conflictErr *ConflictError
	_, err = fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	require.ErrorAs(t, err, &conflictErr)
}

func TestCompleteSinglePart(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "photo.jpg",
		FileSize:  900,
	})
	require.NoError(t, err)

	asset, err := fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), asset.SizeBytes)

	// Single-part objects go up through one presigned PUT; there is no
	// multipart finalize.
	assert.Equal(t, 0, fx.gateway.completeCalls)
}

func TestAbortSemantics(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "video.mp4",
		FileSize:  2500,
	})
	require.NoError(t, err)

	require.NoError(t, fx.service.Abort(context.Background(), descriptor.UploadID, ownerID))
	assert.Equal(t, 1, fx.gateway.abortCalls)

	// Aborting again is a no-op.
	require.NoError(t, fx.service.Abort(context.Background(), descriptor.UploadID, ownerID))
	assert.Equal(t, 1, fx.gateway.abortCalls)

	// A cancelled session cannot complete or take parts.
	var conflictErr *ConflictError
	_, err = fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	require.ErrorAs(t, err, &conflictErr)
	_, err = fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, 1, "etag", 10)
	require.ErrorAs(t, err, &conflictErr)
}

func TestAbortCompletedSessionConflicts(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "photo.jpg",
		FileSize:  900,
	})
	require.NoError(t, err)

	_, err = fx.service.Complete(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)

	var conflictErr *ConflictError
	err = fx.service.Abort(context.Background(), descriptor.UploadID, ownerID)
	require.ErrorAs(t, err, &conflictErr)
}

func TestGetProgress(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "video.mp4",
		FileSize:  2500,
	})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		_, err := fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, i, fmt.Sprintf("etag-%d", i), 1000)
		require.NoError(t, err)
	}

	progress, err := fx.service.GetProgress(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.UploadedParts)
	assert.Equal(t, 3, progress.TotalParts)
	assert.InDelta(t, 66.67, progress.Percent, 0.01)

	var notFoundErr *NotFoundError
	_, err = fx.service.GetProgress(context.Background(), uuid.New(), ownerID)
	require.ErrorAs(t, err, &notFoundErr)

	// A session is invisible to anyone but its owner.
	_, err = fx.service.GetProgress(context.Background(), descriptor.UploadID, uuid.New())
	require.ErrorAs(t, err, &notFoundErr)
}

func TestGetProgressOwnershipBeatsCache(t *testing.T) {
	fx := newUploadFixture(t)
	ownerID := uuid.New()

	descriptor, err := fx.service.CreateSession(context.Background(), ownerID, CreateSessionInput{
		ProjectID: uuid.New(),
		FileName:  "video.mp4",
		FileSize:  2500,
	})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		_, err := fx.service.RegisterPart(context.Background(), descriptor.UploadID, ownerID, i, fmt.Sprintf("etag-%d", i), 1000)
		require.NoError(t, err)
	}

	// The owner's poll warms the cache.
	progress, err := fx.service.GetProgress(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.UploadedParts)
	assert.Contains(t, fx.cache.values, progressCacheKey(descriptor.UploadID))

	// A cached entry never leaks across owners.
	var notFoundErr *NotFoundError
	_, err = fx.service.GetProgress(context.Background(), descriptor.UploadID, uuid.New())
	require.ErrorAs(t, err, &notFoundErr)

	// The owner's next poll is served from the cache.
	hitsBefore := fx.cache.hits
	cached, err := fx.service.GetProgress(context.Background(), descriptor.UploadID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, progress.UploadedParts, cached.UploadedParts)
	assert.Equal(t, hitsBefore+1, fx.cache.hits)
}
