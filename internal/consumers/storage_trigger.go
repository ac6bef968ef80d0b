package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/p-dutta/transcoder/internal/bus"
	"github.com/p-dutta/transcoder/internal/orchestrator"
	"github.com/p-dutta/transcoder/models"
)

const (
	eventTypeAttr       = "eventType"
	eventObjectFinalize = "OBJECT_FINALIZE"
	triggerPrefix       = "input"
	triggerContentType  = "video/mp4"

	// defaultProviderID identifies internally triggered jobs at the key
	// server.
	defaultProviderID = "6d0a6365"
)

var (
	defaultVideoQualities = []int{360, 480, 720, 1080}
	defaultAudioQualities = []int{64}
)

// StorageTriggerHandler synthesizes a full packaging request from an
// "object finalized" notification so uploads into the input prefix start
// transcoding without an explicit request.
type StorageTriggerHandler struct {
	jobs         JobCreator
	outputBucket string
	imageURI     string
	now          func() time.Time
	log          *logrus.Logger
}

func NewStorageTriggerHandler(jobs JobCreator, outputBucket, imageURI string, log *logrus.Logger) *StorageTriggerHandler {
	return &StorageTriggerHandler{
		jobs:         jobs,
		outputBucket: outputBucket,
		imageURI:     imageURI,
		now:          time.Now,
		log:          log,
	}
}

func (h *StorageTriggerHandler) Name() string { return "storage-trigger" }

func (h *StorageTriggerHandler) Handle(ctx context.Context, msg bus.Message) error {
	var event models.StorageObjectEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		h.log.WithField("id", msg.ID).WithError(err).Error("malformed storage trigger message")
		return nil
	}

	eventType := msg.Attributes[eventTypeAttr]
	if !strings.HasPrefix(event.Name, triggerPrefix) ||
		event.ContentType != triggerContentType ||
		eventType != eventObjectFinalize {
		h.log.WithFields(logrus.Fields{
			"name":         event.Name,
			"content_type": event.ContentType,
			"event_type":   eventType,
		}).Debug("storage event ignored")
		return nil
	}

	req := h.synthesizeRequest(event)
	h.log.WithFields(logrus.Fields{
		"custom_name": req.CustomName,
		"content_id":  req.ContentID,
		"input_uri":   req.InputURI,
	}).Info("job request synthesized from storage trigger")

	_, err := h.jobs.Create(ctx, req, orchestrator.CreateOptions{})
	return err
}

// synthesizeRequest builds the default packaging request for an uploaded
// object: the full ladder, both DRM schemes, both manifest formats, and a
// content id derived from the object's directory under the input prefix.
func (h *StorageTriggerHandler) synthesizeRequest(event models.StorageObjectEvent) *models.PackagingRequest {
	subPath := objectSubPath(event.Name)
	contentID := strings.ReplaceAll(subPath, "/", "-")
	fileName := strings.TrimSuffix(path.Base(event.Name), path.Ext(event.Name))

	return &models.PackagingRequest{
		ContentID:    contentID,
		ProviderID:   defaultProviderID,
		PackageID:    contentID,
		InputURI:     fmt.Sprintf("s3://%s/%s", event.Bucket, event.Name),
		OutputURI:    fmt.Sprintf("s3://%s/output/%s/", h.outputBucket, subPath),
		CustomName:   fmt.Sprintf("%s_%d", contentID, h.now().Unix()),
		CreatedBy:    "transcoder_service_internally",
		Description:  "Fairplay and Widevine encryption for " + fileName,
		ImageURI:     h.imageURI,
		VideoQuality: defaultVideoQualities,
		AudioQuality: defaultAudioQualities,
		DRMType:      []string{"both"},
		ManifestType: []string{"dash", "hls"},
	}
}

// objectSubPath strips the input prefix and the file name from an object
// path: "input/drama/s01/ep1.mp4" becomes "drama/s01".
func objectSubPath(name string) string {
	dir := path.Dir(name)
	parts := strings.Split(dir, "/")
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[1:], "/")
}
