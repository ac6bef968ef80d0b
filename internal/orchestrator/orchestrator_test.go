package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-dutta/transcoder/internal/apperrors"
	"github.com/p-dutta/transcoder/internal/keyserver"
	"github.com/p-dutta/transcoder/internal/packaging"
	"github.com/p-dutta/transcoder/internal/store"
	"github.com/p-dutta/transcoder/internal/transcoder"
	"github.com/p-dutta/transcoder/models"
)

// fakeJobStore implements JobStore in memory, including the completion
// transition guard the real store applies.
type fakeJobStore struct {
	mu           sync.Mutex
	jobs         map[string]*models.Job // keyed by custom name
	dispatchMiss bool
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.Job)}
}

func (f *fakeJobStore) Create(_ context.Context, job *models.Job) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.CustomName] = &copied
	result := copied
	return &result, nil
}

func (f *fakeJobStore) GetByCustomName(_ context.Context, name string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[name]; ok {
		result := *job
		return &result, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeJobStore) GetByFullName(_ context.Context, name string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.FullyQualifiedName == name {
			result := *job
			return &result, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeJobStore) GetByJobID(_ context.Context, jobID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.JobID == jobID {
			result := *job
			return &result, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeJobStore) List(_ context.Context) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Job
	for _, job := range f.jobs {
		out = append(out, *job)
	}
	return out, nil
}

func (f *fakeJobStore) MarkDispatched(_ context.Context, customName, fullName, jobID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[customName]
	if !ok || f.dispatchMiss {
		return nil, store.ErrNotFound
	}
	job.FullyQualifiedName = fullName
	job.JobID = jobID
	job.Status = models.StatusProcessing
	result := *job
	return &result, nil
}

func (f *fakeJobStore) MarkComplete(_ context.Context, fullName string, state models.JobState, duration string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.FullyQualifiedName == fullName && job.Status != models.StatusComplete {
			job.Status = models.StatusComplete
			job.State = state
			job.DurationInSec = duration
			result := *job
			return &result, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeEngine struct {
	createCalls   int
	durationCalls int
	failCreate    bool
}

func (f *fakeEngine) CreateJob(_ context.Context, _, _ string, _ packaging.JobConfig) (*transcoder.Job, error) {
	f.createCalls++
	if f.failCreate {
		return nil, apperrors.EngineSubmission("engine rejected job", nil)
	}
	return &transcoder.Job{Name: fmt.Sprintf("projects/p1/locations/asia/jobs/engine-%d", f.createCalls)}, nil
}

func (f *fakeEngine) JobDuration(_ context.Context, _ string) (string, error) {
	f.durationCalls++
	return "120.5", nil
}

type fakeKeys struct {
	calls int
	fail  bool
}

func (f *fakeKeys) Provision(_ context.Context, _, _, _ string, sel packaging.Selection) ([]keyserver.ProcessedKey, error) {
	f.calls++
	if f.fail {
		return nil, apperrors.KeyService("key server said no")
	}
	if sel.Unencrypted() {
		return nil, nil
	}
	return []keyserver.ProcessedKey{{KeyID: "kid-1"}}, nil
}

type fakeBlobs struct {
	missingInput bool
}

func (f *fakeBlobs) Exists(_ context.Context, uri string) (bool, error) {
	if f.missingInput && uri != "" {
		return false, nil
	}
	return true, nil
}

func (f *fakeBlobs) EnsureOutputLocation(_ context.Context, uri string) (string, error) {
	return uri, nil
}

func testRequest() *models.PackagingRequest {
	return &models.PackagingRequest{
		ContentID:    "content-1",
		ProviderID:   "provider-1",
		PackageID:    "package-1",
		InputURI:     "s3://media-in/input/content-1/ep1.mp4",
		OutputURI:    "s3://media-out/output/content-1/",
		CustomName:   "content-1_1700000000",
		CreatedBy:    "tester",
		Description:  "test job",
		ImageURI:     "s3://assets/logo.png",
		VideoQuality: []int{360, 1080},
		AudioQuality: []int{64},
		DRMType:      []string{"both"},
		ManifestType: []string{"hls", "dash"},
	}
}

func newOrchestrator(jobStore JobStore, engine Engine, keys KeyProvider, blobs BlobStore) *Orchestrator {
	log := logrus.New()
	log.SetOutput(io.Discard)
	builder := packaging.NewBuilder("p1", "secret")
	return New(jobStore, engine, keys, blobs, builder, Config{
		ProjectID:     "p1",
		Location:      "asia",
		SecretVersion: 3,
	}, log)
}

func TestCreateDispatchCompleteLifecycle(t *testing.T) {
	jobStore := newFakeJobStore()
	engine := &fakeEngine{}
	o := newOrchestrator(jobStore, engine, &fakeKeys{}, &fakeBlobs{})

	created, err := o.Create(context.Background(), testRequest(), CreateOptions{})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, models.StatusProcessing, created.Status)
	assert.Equal(t, models.StateInit, created.State)
	assert.Equal(t, "projects/p1/locations/asia/jobs/engine-1", created.FullyQualifiedName)
	assert.Equal(t, "engine-1", created.JobID)

	completed, err := o.Complete(context.Background(), created.FullyQualifiedName, "SUCCEEDED")
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.Equal(t, models.StatusComplete, completed.Status)
	assert.Equal(t, models.StateSuccess, completed.State)
	assert.Equal(t, "120.5", completed.DurationInSec)
	assert.Equal(t, created.FullyQualifiedName, completed.FullyQualifiedName)
}

func TestCompleteFailedTerminalCode(t *testing.T) {
	jobStore := newFakeJobStore()
	o := newOrchestrator(jobStore, &fakeEngine{}, &fakeKeys{}, &fakeBlobs{})

	created, err := o.Create(context.Background(), testRequest(), CreateOptions{})
	require.NoError(t, err)

	completed, err := o.Complete(context.Background(), created.FullyQualifiedName, "FAILED")
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.Equal(t, models.StateFailed, completed.State)
}

func TestCompleteIsIdempotent(t *testing.T) {
	jobStore := newFakeJobStore()
	engine := &fakeEngine{}
	o := newOrchestrator(jobStore, engine, &fakeKeys{}, &fakeBlobs{})

	created, err := o.Create(context.Background(), testRequest(), CreateOptions{})
	require.NoError(t, err)

	first, err := o.Complete(context.Background(), created.FullyQualifiedName, "SUCCEEDED")
	require.NoError(t, err)
	require.NotNil(t, first)

	// Replay: no transition, and crucially no second duration lookup.
	second, err := o.Complete(context.Background(), created.FullyQualifiedName, "SUCCEEDED")
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, 1, engine.durationCalls)

	after, err := jobStore.GetByFullName(context.Background(), created.FullyQualifiedName)
	require.NoError(t, err)
	assert.Equal(t, *first, *after)
}

func TestCompleteUnknownJobIsNoOp(t *testing.T) {
	o := newOrchestrator(newFakeJobStore(), &fakeEngine{}, &fakeKeys{}, &fakeBlobs{})

	job, err := o.Complete(context.Background(), "projects/p1/locations/asia/jobs/ghost", "SUCCEEDED")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDispatchAckUnknownCustomNameIsNoOp(t *testing.T) {
	jobStore := newFakeJobStore()
	o := newOrchestrator(jobStore, &fakeEngine{}, &fakeKeys{}, &fakeBlobs{})

	job, err := o.DispatchAcknowledged(context.Background(), "never-created", "projects/p1/locations/asia/jobs/x")
	require.NoError(t, err)
	assert.Nil(t, job)

	jobs, err := jobStore.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCreateErrorsWhenRecordVanishesBeforeDispatch(t *testing.T) {
	jobStore := newFakeJobStore()
	jobStore.dispatchMiss = true
	o := newOrchestrator(jobStore, &fakeEngine{}, &fakeKeys{}, &fakeBlobs{})

	job, err := o.Create(context.Background(), testRequest(), CreateOptions{})
	require.Error(t, err)
	assert.Nil(t, job)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 500, appErr.HTTPStatus)
}

func TestCreateRejectsUnknownDRM(t *testing.T) {
	o := newOrchestrator(newFakeJobStore(), &fakeEngine{}, &fakeKeys{}, &fakeBlobs{})

	req := testRequest()
	req.DRMType = []string{"playready"}
	_, err := o.Create(context.Background(), req, CreateOptions{})
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestCreateVerifiesInputWhenAsked(t *testing.T) {
	jobStore := newFakeJobStore()
	keys := &fakeKeys{}
	o := newOrchestrator(jobStore, &fakeEngine{}, keys, &fakeBlobs{missingInput: true})

	_, err := o.Create(context.Background(), testRequest(), CreateOptions{VerifyStorage: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Input file does not exist")

	// Nothing downstream ran.
	assert.Equal(t, 0, keys.calls)
	jobs, _ := jobStore.List(context.Background())
	assert.Empty(t, jobs)
}

func TestCreateSurfacesEngineFailure(t *testing.T) {
	jobStore := newFakeJobStore()
	o := newOrchestrator(jobStore, &fakeEngine{failCreate: true}, &fakeKeys{}, &fakeBlobs{})

	_, err := o.Create(context.Background(), testRequest(), CreateOptions{})
	require.Error(t, err)

	// The job record exists but was never dispatched; the error surfaced
	// to the caller rather than leaving a silent failure.
	job, err := jobStore.GetByCustomName(context.Background(), testRequest().CustomName)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, job.Status)
	assert.Empty(t, job.FullyQualifiedName)
}

func TestCreateSurfacesKeyServiceFailure(t *testing.T) {
	jobStore := newFakeJobStore()
	o := newOrchestrator(jobStore, &fakeEngine{}, &fakeKeys{fail: true}, &fakeBlobs{})

	_, err := o.Create(context.Background(), testRequest(), CreateOptions{})
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)

	jobs, _ := jobStore.List(context.Background())
	assert.Empty(t, jobs)
}

func TestLookupFallsBackToJobID(t *testing.T) {
	jobStore := newFakeJobStore()
	o := newOrchestrator(jobStore, &fakeEngine{}, &fakeKeys{}, &fakeBlobs{})

	created, err := o.Create(context.Background(), testRequest(), CreateOptions{})
	require.NoError(t, err)

	byName, err := o.Lookup(context.Background(), created.CustomName, "")
	require.NoError(t, err)
	assert.Equal(t, created.CustomName, byName.CustomName)

	byID, err := o.Lookup(context.Background(), "wrong-name", created.JobID)
	require.NoError(t, err)
	assert.Equal(t, created.JobID, byID.JobID)

	_, err = o.Lookup(context.Background(), "", "")
	require.Error(t, err)

	_, err = o.Lookup(context.Background(), "missing", "missing")
	require.Error(t, err)
}
