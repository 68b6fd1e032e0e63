package classifier

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Spotcheck/internal/retry"
	"github.com/soaringjerry/Spotcheck/internal/services"
)

const samplePredictions = `{
  "time": 0.12,
  "image": {"width": 640, "height": 480},
  "predictions": [
    {"x": 120.5, "y": 88, "width": 40, "height": 32, "confidence": 0.82, "class": "Chickenpox", "class_id": 0, "detection_id": "d-1"},
    {"x": 300, "y": 200, "width": 20, "height": 18, "confidence": 0.31, "class": "eczema", "class_id": 2, "detection_id": "d-2"}
  ]
}`

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
}

func TestClassifyDecodesPredictions(t *testing.T) {
	image := []byte("fake-image-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/skin-rash/3", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		assert.Equal(t, "20", r.URL.Query().Get("confidence"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, base64.StdEncoding.EncodeToString(image), string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, samplePredictions)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/skin-rash/3/", "secret", WithMinConfidence(0.2), WithRetry(fastRetry()))
	preds, err := c.Classify(context.Background(), image)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, services.Prediction{X: 120.5, Y: 88, Width: 40, Height: 32, Confidence: 0.82, Class: "Chickenpox", ClassID: 0, DetectionID: "d-1"}, preds[0])
	assert.Equal(t, "eczema", preds[1].Class)
}

func TestClassifyDefaultKeepsLowConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "api_key=k&confidence=0", r.URL.RawQuery)
		_, _ = io.WriteString(w, `{"predictions":[{"class":"chickenpox","confidence":0.15},{"class":"eczema","confidence":0.1}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", WithRetry(fastRetry()))
	preds, err := c.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.Len(t, preds, 2)

	res := services.Score(services.QuestionnaireAnswers{}, preds)
	require.NotNil(t, res.AIConfidence)
	assert.InDelta(t, 15, *res.AIConfidence, 1e-9)
}

func TestClassifyEmptyPredictions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"predictions": []}`)
	}))
	defer srv.Close()

	preds, err := NewClient(srv.URL, "").Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.NotNil(t, preds)
	assert.Empty(t, preds)
}

func TestClassifyRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, samplePredictions)
	}))
	defer srv.Close()

	preds, err := NewClient(srv.URL, "k", WithRetry(fastRetry())).Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Len(t, preds, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClassifyDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad api key", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", WithRetry(fastRetry())).Classify(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "status 403")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClassifyGivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", WithRetry(fastRetry())).Classify(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClassifyMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>not json</html>`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", WithRetry(fastRetry())).Classify(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClassifyEmptyImage(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", "k").Classify(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
