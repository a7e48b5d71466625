package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/stemsi/exstem-proctor/internal/grading"
)

const omrRequestTimeout = 30 * time.Second

// OMRClient calls an external optical mark recognition service. It implements grading.Detector.
type OMRClient struct {
	endpoint string
	http     *http.Client
	backoff  func() retry.Backoff
}

// NewOMRClient creates a client posting to baseURL + "/detect".
func NewOMRClient(baseURL string, httpClient *http.Client) *OMRClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: omrRequestTimeout}
	}
	return &OMRClient{
		endpoint: strings.TrimRight(baseURL, "/") + "/detect",
		http:     httpClient,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewExponential(250*time.Millisecond))
		},
	}
}

type omrRequest struct {
	Image         string `json:"image"`
	QuestionCount int    `json:"question_count"`
}

type omrResponse struct {
	Detections []grading.Detection `json:"detections"`
}

// Detect sends the scanned sheet and returns the detected bubbles. Server
// errors are retried a couple of times; client errors are not.
func (c *OMRClient) Detect(ctx context.Context, image []byte, questionCount int) ([]grading.Detection, error) {
	body, err := json.Marshal(omrRequest{
		Image:         base64.StdEncoding.EncodeToString(image),
		QuestionCount: questionCount,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal omr request: %w", err)
	}

	var out omrResponse
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("omr request: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return retry.RetryableError(fmt.Errorf("omr service returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("omr service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return nil, err
	}
	return out.Detections, nil
}
