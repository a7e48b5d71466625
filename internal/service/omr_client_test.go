package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOMRClient(url string) *OMRClient {
	c := NewOMRClient(url, nil)
	c.backoff = func() retry.Backoff { return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond)) }
	return c
}

func TestOMRClient_Detect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		var req omrRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		img, err := base64.StdEncoding.DecodeString(req.Image)
		require.NoError(t, err)
		assert.Equal(t, "sheet", string(img))
		assert.Equal(t, 40, req.QuestionCount)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections":[{"question_index":0,"selected_option":"B","confidence":0.92}]}`))
	}))
	defer srv.Close()

	got, err := fastOMRClient(srv.URL+"/").Detect(context.Background(), []byte("sheet"), 40)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].SelectedOption)
	assert.InDelta(t, 0.92, got[0].Confidence, 1e-9)
}

func TestOMRClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"detections":[]}`))
	}))
	defer srv.Close()

	got, err := fastOMRClient(srv.URL).Detect(context.Background(), []byte("sheet"), 4)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOMRClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unreadable sheet", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := fastOMRClient(srv.URL).Detect(context.Background(), []byte("sheet"), 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable sheet")
	assert.Equal(t, int32(1), calls.Load())
}
