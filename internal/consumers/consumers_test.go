package consumers

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-dutta/transcoder/internal/bus"
	"github.com/p-dutta/transcoder/internal/orchestrator"
	"github.com/p-dutta/transcoder/internal/worker"
	"github.com/p-dutta/transcoder/models"
)

type captureCreator struct {
	requests []*models.PackagingRequest
	err      error
}

func (c *captureCreator) Create(_ context.Context, req *models.PackagingRequest, _ orchestrator.CreateOptions) (*models.Job, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return &models.Job{CustomName: req.CustomName, JobID: "j-1"}, nil
}

type captureCompleter struct {
	calls []string
	job   *models.Job
	err   error
}

func (c *captureCompleter) Complete(_ context.Context, fullName, terminalCode string) (*models.Job, error) {
	c.calls = append(c.calls, fullName+"|"+terminalCode)
	return c.job, c.err
}

type capturePublisher struct {
	streams  []string
	payloads []any
}

func (p *capturePublisher) Publish(_ context.Context, stream string, payload any, _ map[string]string) error {
	p.streams = append(p.streams, stream)
	p.payloads = append(p.payloads, payload)
	return nil
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

const validRequestJSON = `{
	"content_id": "content-1",
	"provider_id": "provider-1",
	"package_id": "package-1",
	"input_uri": "s3://media-in/input/content-1/ep1.mp4",
	"output_uri": "s3://media-out/output/content-1/",
	"custom_name": "content-1_1700000000",
	"video_quality": [360, 1080],
	"audio_quality": [64],
	"drm_type": ["both"],
	"manifast_type": ["hls", "dash"]
}`

type fakeSubscription struct {
	ch   chan bus.Message
	mu   sync.Mutex
	acks []string
	done chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{ch: make(chan bus.Message, 4), done: make(chan struct{}, 4)}
}

func (s *fakeSubscription) Messages() <-chan bus.Message { return s.ch }

func (s *fakeSubscription) Ack(_ context.Context, id string) {
	s.mu.Lock()
	s.acks = append(s.acks, id)
	s.mu.Unlock()
	s.done <- struct{}{}
}

type orderedHandler struct {
	mu      sync.Mutex
	events  []string
	fail    bool
	release chan struct{}
}

func (h *orderedHandler) Handle(_ context.Context, msg bus.Message) error {
	if h.release != nil {
		<-h.release
	}
	h.mu.Lock()
	h.events = append(h.events, "handled:"+msg.ID)
	h.mu.Unlock()
	if h.fail {
		return errors.New("boom")
	}
	return nil
}

func (h *orderedHandler) Name() string { return "ordered" }

func TestLoopAcksAfterHandlerCompletes(t *testing.T) {
	sub := newFakeSubscription()
	handler := &orderedHandler{release: make(chan struct{})}
	disp := worker.NewDispatcher(1, 4, discardLogger())
	loop := NewLoop(handler, sub, disp, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	sub.ch <- bus.Message{ID: "1-0", Data: []byte(`{}`)}

	// The handler is parked, so no ack may have been recorded yet.
	time.Sleep(20 * time.Millisecond)
	sub.mu.Lock()
	pending := len(sub.acks)
	sub.mu.Unlock()
	require.Zero(t, pending)

	close(handler.release)
	select {
	case <-sub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was never acked")
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, []string{"1-0"}, sub.acks)
	assert.Equal(t, []string{"handled:1-0"}, handler.events)
}

func TestLoopAcksFailedMessages(t *testing.T) {
	sub := newFakeSubscription()
	handler := &orderedHandler{fail: true}
	disp := worker.NewDispatcher(1, 4, discardLogger())
	loop := NewLoop(handler, sub, disp, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	sub.ch <- bus.Message{ID: "2-0", Data: []byte(`{}`)}
	select {
	case <-sub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("failed message was never acked")
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, []string{"2-0"}, sub.acks)
}

func TestJobRequestHandlerCreatesJob(t *testing.T) {
	creator := &captureCreator{}
	h := NewJobRequestHandler(creator, validator.New(), discardLogger())

	err := h.Handle(context.Background(), bus.Message{ID: "1-0", Data: []byte(validRequestJSON)})
	require.NoError(t, err)
	require.Len(t, creator.requests, 1)
	assert.Equal(t, "content-1", creator.requests[0].ContentID)
	assert.Equal(t, []string{"hls", "dash"}, creator.requests[0].ManifestType)
}

func TestJobRequestHandlerRejectsUnknownFields(t *testing.T) {
	creator := &captureCreator{}
	h := NewJobRequestHandler(creator, validator.New(), discardLogger())

	payload := `{"content_id": "c", "surprise": true}`
	err := h.Handle(context.Background(), bus.Message{ID: "1-1", Data: []byte(payload)})
	require.NoError(t, err)
	assert.Empty(t, creator.requests)
}

func TestJobRequestHandlerRejectsInvalidPayload(t *testing.T) {
	creator := &captureCreator{}
	h := NewJobRequestHandler(creator, validator.New(), discardLogger())

	// Missing drm_type and manifast_type.
	payload := `{
		"content_id": "c", "provider_id": "p", "package_id": "pkg",
		"input_uri": "s3://in/a.mp4", "output_uri": "s3://out/a/",
		"custom_name": "c_1", "video_quality": [360]
	}`
	err := h.Handle(context.Background(), bus.Message{ID: "1-2", Data: []byte(payload)})
	require.NoError(t, err)
	assert.Empty(t, creator.requests)
}

func TestStorageTriggerSynthesizesDefaultRequest(t *testing.T) {
	creator := &captureCreator{}
	h := NewStorageTriggerHandler(creator, "transcoder-output", "s3://assets/logo.png", discardLogger())
	h.now = func() time.Time { return time.Unix(1700000000, 0) }

	payload := `{"name": "input/drama/s01/ep1.mp4", "contentType": "video/mp4", "bucket": "media-in"}`
	err := h.Handle(context.Background(), bus.Message{
		ID:         "2-0",
		Data:       []byte(payload),
		Attributes: map[string]string{"eventType": "OBJECT_FINALIZE"},
	})
	require.NoError(t, err)
	require.Len(t, creator.requests, 1)

	req := creator.requests[0]
	assert.Equal(t, "drama-s01", req.ContentID)
	assert.Equal(t, "drama-s01", req.PackageID)
	assert.Equal(t, "drama-s01_1700000000", req.CustomName)
	assert.Equal(t, "6d0a6365", req.ProviderID)
	assert.Equal(t, "s3://media-in/input/drama/s01/ep1.mp4", req.InputURI)
	assert.Equal(t, "s3://transcoder-output/output/drama/s01/", req.OutputURI)
	assert.Equal(t, []int{360, 480, 720, 1080}, req.VideoQuality)
	assert.Equal(t, []int{64}, req.AudioQuality)
	assert.Equal(t, []string{"both"}, req.DRMType)
	assert.Equal(t, []string{"dash", "hls"}, req.ManifestType)
	assert.Equal(t, "s3://assets/logo.png", req.ImageURI)
	assert.Contains(t, req.Description, "ep1")
}

func TestStorageTriggerIgnoresNonMatchingEvents(t *testing.T) {
	cases := []struct {
		name      string
		payload   string
		eventType string
	}{
		{"wrong prefix", `{"name": "archive/a.mp4", "contentType": "video/mp4", "bucket": "b"}`, "OBJECT_FINALIZE"},
		{"wrong content type", `{"name": "input/a/a.jpg", "contentType": "image/jpeg", "bucket": "b"}`, "OBJECT_FINALIZE"},
		{"wrong event type", `{"name": "input/a/a.mp4", "contentType": "video/mp4", "bucket": "b"}`, "OBJECT_DELETE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creator := &captureCreator{}
			h := NewStorageTriggerHandler(creator, "out", "", discardLogger())
			err := h.Handle(context.Background(), bus.Message{
				ID:         "2-1",
				Data:       []byte(tc.payload),
				Attributes: map[string]string{"eventType": tc.eventType},
			})
			require.NoError(t, err)
			assert.Empty(t, creator.requests)
		})
	}
}

func TestJobCompletionPublishesFinalStatus(t *testing.T) {
	completer := &captureCompleter{job: &models.Job{
		CustomName:         "content-1_1700000000",
		FullyQualifiedName: "projects/p1/locations/asia/jobs/j-1",
		JobID:              "j-1",
		InputURI:           "s3://media-in/input/content-1/ep1.mp4",
		OutputURI:          "s3://media-out/output/content-1/",
		Status:             models.StatusComplete,
		State:              models.StateSuccess,
		DurationInSec:      "120.5",
	}}
	publisher := &capturePublisher{}
	h := NewJobCompletionHandler(completer, publisher, "transcoder:notifications", "https://cdn.example.com/", discardLogger())

	payload := `{"job": {"name": "projects/p1/locations/asia/jobs/j-1", "state": "SUCCEEDED"}}`
	err := h.Handle(context.Background(), bus.Message{ID: "3-0", Data: []byte(payload)})
	require.NoError(t, err)

	require.Equal(t, []string{"projects/p1/locations/asia/jobs/j-1|SUCCEEDED"}, completer.calls)
	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, "transcoder:notifications", publisher.streams[0])

	resp, ok := publisher.payloads[0].(models.JobResponse)
	require.True(t, ok)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "https://cdn.example.com/output/content-1/manifest_dash.mpd", resp.Data[0]["dash_media_cdn"])
	assert.Equal(t, "https://cdn.example.com/output/content-1/manifest_hls.m3u8", resp.Data[0]["hls_media_cdn"])
	assert.Equal(t, "120.5", resp.Data[0]["duration"])
}

func TestJobCompletionSkipsPublishWithoutTransition(t *testing.T) {
	completer := &captureCompleter{} // Complete returns nil job
	publisher := &capturePublisher{}
	h := NewJobCompletionHandler(completer, publisher, "transcoder:notifications", "https://cdn.example.com/", discardLogger())

	payload := `{"job": {"name": "projects/p1/locations/asia/jobs/ghost", "state": "SUCCEEDED"}}`
	err := h.Handle(context.Background(), bus.Message{ID: "3-1", Data: []byte(payload)})
	require.NoError(t, err)
	assert.Len(t, completer.calls, 1)
	assert.Empty(t, publisher.payloads)
}

func TestJobCompletionIgnoresMalformedPayload(t *testing.T) {
	completer := &captureCompleter{}
	publisher := &capturePublisher{}
	h := NewJobCompletionHandler(completer, publisher, "s", "", discardLogger())

	require.NoError(t, h.Handle(context.Background(), bus.Message{ID: "3-2", Data: []byte(`not json`)}))
	require.NoError(t, h.Handle(context.Background(), bus.Message{ID: "3-3", Data: []byte(`{"job": {"state": "SUCCEEDED"}}`)}))
	assert.Empty(t, completer.calls)
	assert.Empty(t, publisher.payloads)
}
