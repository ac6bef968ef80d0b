// Package keyserver obtains content encryption keys from the external key
// provisioning service and binds them to mux-stream names via the packaging
// matchers. The adapter is pure orchestration over one HTTP call and is
// idempotent for identical inputs.
package keyserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/p-dutta/transcoder/internal/apperrors"
	"github.com/p-dutta/transcoder/internal/packaging"
)

// ProcessedKey is one delivered key ready to be stored alongside the job's
// secret version.
type ProcessedKey struct {
	KeyID    string                 `json:"keyId"`
	Key      string                 `json:"key"`
	IV       string                 `json:"iv"`
	KeyURI   string                 `json:"keyUri"`
	Matchers []packaging.KeyMatcher `json:"matchers"`
}

type keyRecord struct {
	KeyID string `json:"keyId"`
	Key   string `json:"key"`
	KeyIV string `json:"keyIv"`
}

type keyServerResponse struct {
	Data struct {
		Keys []map[string]keyRecord `json:"keys"`
	} `json:"data"`
}

type provisionRequest struct {
	PackageID  string   `json:"packageId"`
	ContentID  string   `json:"contentId"`
	ProviderID string   `json:"providerId"`
	Quality    []string `json:"quality"`
	DRMScheme  []string `json:"drmScheme"`
}

// Client talks to the key server.
type Client struct {
	url     string
	http    *http.Client
	builder *packaging.Builder
	log     *logrus.Logger
}

func NewClient(url string, builder *packaging.Builder, log *logrus.Logger) *Client {
	return &Client{
		url:     url,
		http:    &http.Client{Timeout: 30 * time.Second},
		builder: builder,
		log:     log,
	}
}

// Provision requests keys for the given content/package/provider and
// selection. An unencrypted selection needs no keys and returns (nil, nil).
func (c *Client) Provision(ctx context.Context, contentID, packageID, providerID string, sel packaging.Selection) ([]ProcessedKey, error) {
	if sel.Unencrypted() {
		c.log.WithField("content_id", contentID).Info("drm_type is none, skipping key provisioning")
		return nil, nil
	}

	payload := provisionRequest{
		PackageID:  packageID,
		ContentID:  contentID,
		ProviderID: providerID,
		Quality:    qualityClasses(sel),
		DRMScheme:  drmSchemeCodes(sel),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(500, apperrors.CodeInternal, "failed to encode key server request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(500, apperrors.CodeInternal, "failed to build key server request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(500, apperrors.CodeInternal, "key server unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(500, apperrors.CodeInternal, "failed to read key server response", err)
	}

	if resp.StatusCode != http.StatusCreated {
		c.log.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"body":    string(respBody),
			"content": contentID,
		}).Error("key server rejected provisioning request")
		return nil, apperrors.KeyService(fmt.Sprintf("key server returned %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed keyServerResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperrors.Wrap(500, apperrors.CodeInternal, "failed to decode key server response", err)
	}

	return c.processKeys(sel, parsed.Data.Keys), nil
}

// processKeys turns the per-quality-class key records into processed
// entries. Only AUDIO records drive the current flow; HD and SD classes are
// recognized by the matcher builder but not yet requested downstream.
func (c *Client) processKeys(sel packaging.Selection, records []map[string]keyRecord) []ProcessedKey {
	var keys []ProcessedKey
	for _, record := range records {
		if data, ok := record["AUDIO"]; ok {
			keys = append(keys, ProcessedKey{
				KeyID:    data.KeyID,
				Key:      data.Key,
				IV:       data.KeyIV,
				KeyURI:   fmt.Sprintf("skd://%s", data.KeyID),
				Matchers: []packaging.KeyMatcher{c.builder.Matcher(sel, packaging.KeyClassAudio)},
			})
		}
	}
	return keys
}

// qualityClasses maps concrete qualities onto the key server's class names:
// anything below 1080 is SD, 1080 is HD, audio is its own class.
func qualityClasses(sel packaging.Selection) []string {
	var classes []string
	sd := false
	hd := false
	for _, q := range sel.VideoQualities {
		switch q {
		case 360, 480, 720:
			sd = true
		case 1080:
			hd = true
		}
	}
	if sd {
		classes = append(classes, "SD")
	}
	if hd {
		classes = append(classes, "HD")
	}
	if len(sel.AudioQualities) > 0 {
		classes = append(classes, "AUDIO")
	}
	return classes
}

func drmSchemeCodes(sel packaging.Selection) []string {
	var codes []string
	for _, scheme := range sel.Schemes() {
		switch scheme {
		case packaging.DRMFairplay:
			codes = append(codes, "FP")
		case packaging.DRMWidevine:
			codes = append(codes, "WV")
		}
	}
	return codes
}
