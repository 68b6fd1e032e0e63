package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Spotcheck/internal/middleware"
	"github.com/soaringjerry/Spotcheck/internal/services"
)

const highAnswersJSON = `{"fever":"high","rashAppearance":"fluid-blisters","rashLocations":["face","chest","back","stomach"],"itchiness":"very","otherSymptoms":[],"exposureHistory":"known","daysWithSymptoms":"2-3"}`

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type fixedClassifier struct {
	preds []services.Prediction
	calls int
}

func (c *fixedClassifier) Classify(context.Context, []byte) ([]services.Prediction, error) {
	c.calls++
	return c.preds, nil
}

type testAPI struct {
	handler http.Handler
	store   *MemoryStore
}

func newTestAPI(t *testing.T, opts ...services.AssessmentOption) *testAPI {
	t.Helper()
	store := NewMemoryStore()
	authn := middleware.NewAuthenticator("test-secret")
	authSvc := services.NewAuthService(store, authn.SignToken, time.Hour)
	assessSvc := services.NewAssessmentService(store, opts...)
	mux := http.NewServeMux()
	NewRouter(authSvc, assessSvc, zerolog.Nop(), 1<<20).Register(mux)
	return &testAPI{handler: authn.WithAuth(middleware.LocaleMiddleware(mux)), store: store}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/auth/register", "", []byte(`{"email":"`+email+`","password":"correct horse"}`), "application/json")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out["token"])
	require.NotEmpty(t, out["user_id"])
	return out["token"]
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestAuthEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "Alice@Example.com")

	rr := api.do(t, http.MethodPost, "/api/auth/register", "", []byte(`{"email":"alice@example.com","password":"another one"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do(t, http.MethodPost, "/api/auth/register", "", []byte(`{"email":"bob@example.com","password":"short"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, http.MethodPost, "/api/auth/login", "", []byte(`{"email":"alice@example.com","password":"correct horse"}`), "application/json")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, decodeBody(t, rr)["token"])

	rr = api.do(t, http.MethodPost, "/api/auth/login", "", []byte(`{"email":"alice@example.com","password":"wrong password"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, http.MethodPost, "/api/auth/login", "", []byte(`{not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/auth/login", "", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestQuestionnaireEndpoint(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(t, http.MethodGet, "/api/questionnaire", "", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	vocab, ok := body["vocabulary"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, vocab["exposureHistory"], "priorImmunity")
	assert.NotEmpty(t, body["disclaimer"])
}

func TestScorePreview(t *testing.T) {
	api := newTestAPI(t)
	body := []byte(`{"answers":` + highAnswersJSON + `,"predictions":[{"class":"Chickenpox","confidence":0.9}]}`)
	rr := api.do(t, http.MethodPost, "/api/score", "", body, "application/json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeBody(t, rr)
	assert.Equal(t, "high", out["likelihood"])
	assert.EqualValues(t, 24, out["score"])
	assert.EqualValues(t, 90, out["aiConfidence"])
	assert.Equal(t, "High likelihood of chickenpox", out["likelihood_label"])

	req := httptest.NewRequest(http.MethodPost, "/api/score", bytes.NewReader(body))
	req.Header.Set("Accept-Language", "zh-CN")
	zh := httptest.NewRecorder()
	api.handler.ServeHTTP(zh, req)
	require.Equal(t, http.StatusOK, zh.Code)
	assert.Equal(t, "水痘可能性高", decodeBody(t, zh)["likelihood_label"])

	assert.Empty(t, api.store.assessments)
}

func TestScoreRejectsInvalidAnswers(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(t, http.MethodPost, "/api/score", "", []byte(`{"answers":{"fever":"scorching"}}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "fever")
}

func TestAssessmentsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/api/assessments", "/api/assessments/summary", "/api/assessments/export", "/api/assessments/x", "/api/images/x"} {
		rr := api.do(t, http.MethodGet, path, "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestAssessmentLifecycle(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice@example.com")
	bob := api.register(t, "bob@example.com")

	rr := api.do(t, http.MethodPost, "/api/assessments", alice, []byte(`{"answers":`+highAnswersJSON+`}`), "application/json")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeBody(t, rr)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/assessments/"+id, rr.Header().Get("Location"))
	result := created["result"].(map[string]any)
	assert.Equal(t, "high", result["likelihood"])
	assert.EqualValues(t, 19, result["score"])
	assert.NotContains(t, result, "aiConfidence")

	rr = api.do(t, http.MethodGet, "/api/assessments/"+id, alice, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/assessments/"+id, bob, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = api.do(t, http.MethodDelete, "/api/assessments/"+id, bob, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/assessments", alice, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decodeBody(t, rr)["count"])

	rr = api.do(t, http.MethodGet, "/api/assessments", bob, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 0, decodeBody(t, rr)["count"])

	rr = api.do(t, http.MethodGet, "/api/assessments?limit=abc", alice, nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, http.MethodDelete, "/api/assessments/"+id, alice, nil, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = api.do(t, http.MethodGet, "/api/assessments/"+id, alice, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodPut, "/api/assessments/"+id, alice, nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMultipartAssessmentWithImage(t *testing.T) {
	cls := &fixedClassifier{preds: []services.Prediction{
		{Class: "chickenpox", Confidence: 0.55},
		{Class: "eczema", Confidence: 0.3},
	}}
	api := newTestAPI(t, services.WithClassifier(cls))
	token := api.register(t, "alice@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("answers", highAnswersJSON))
	fw, err := mw.CreateFormFile("image", "rash.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rr := api.do(t, http.MethodPost, "/api/assessments", token, buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, 1, cls.calls)

	created := decodeBody(t, rr)
	result := created["result"].(map[string]any)
	assert.EqualValues(t, 22, result["score"])
	assert.EqualValues(t, 55, result["aiConfidence"])
	assert.Len(t, created["predictions"], 2)
	imageURL, _ := created["image_url"].(string)
	require.True(t, strings.HasPrefix(imageURL, "/api/images/"))

	rr = api.do(t, http.MethodGet, imageURL, token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, rr.Body.Bytes())

	other := api.register(t, "bob@example.com")
	rr = api.do(t, http.MethodGet, imageURL, other, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMultipartRejectsNonImage(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "alice@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("answers", highAnswersJSON))
	fw, err := mw.CreateFormFile("image", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("just some text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rr := api.do(t, http.MethodPost, "/api/assessments", token, buf.Bytes(), mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, api.store.assessments)
	assert.Empty(t, api.store.images)
}

func TestMultipartRequiresAnswers(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "alice@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "hi"))
	require.NoError(t, mw.Close())

	rr := api.do(t, http.MethodPost, "/api/assessments", token, buf.Bytes(), mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "answers")
}

func TestSummaryAndExport(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "alice@example.com")
	for i := 0; i < 2; i++ {
		rr := api.do(t, http.MethodPost, "/api/assessments", token, []byte(`{"answers":`+highAnswersJSON+`,"predictions":[]}`), "application/json")
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := api.do(t, http.MethodGet, "/api/assessments/summary", token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 2, summary["total"])
	assert.EqualValues(t, 2, summary["by_likelihood"].(map[string]any)["high"])
	assert.Equal(t, "High likelihood of chickenpox", body["labels"].(map[string]any)["high"])

	rr = api.do(t, http.MethodGet, "/api/assessments/export", token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "assessments.csv")
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,created_at,likelihood,score"))
}

func TestStatusForCode(t *testing.T) {
	cases := map[services.ErrorCode]int{
		services.ErrorInvalid:         http.StatusBadRequest,
		services.ErrorUnauthorized:    http.StatusUnauthorized,
		services.ErrorForbidden:       http.StatusForbidden,
		services.ErrorNotFound:        http.StatusNotFound,
		services.ErrorConflict:        http.StatusConflict,
		services.ErrorTooManyRequests: http.StatusTooManyRequests,
		services.ErrorBadGateway:      http.StatusBadGateway,
		services.ErrorCode("other"):   http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusForCode(code), string(code))
	}
}
