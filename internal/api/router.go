package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/soaringjerry/Spotcheck/internal/middleware"
	"github.com/soaringjerry/Spotcheck/internal/services"
	"github.com/soaringjerry/Spotcheck/internal/utils"
)

const (
	maxJSONBody       = 1 << 20
	multipartOverhead = 1 << 20
	defaultMaxUpload  = 10 << 20
)

type Router struct {
	auth          *services.AuthService
	assessments   *services.AssessmentService
	logger        zerolog.Logger
	maxImageBytes int64
}

func NewRouter(auth *services.AuthService, assessments *services.AssessmentService, logger zerolog.Logger, maxImageBytes int) *Router {
	limit := int64(maxImageBytes)
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	return &Router{auth: auth, assessments: assessments, logger: logger, maxImageBytes: limit}
}

// Register mounts the API on mux. Protected routes expect the
// Authenticator.WithAuth middleware somewhere above the mux.
func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", rt.handleRegister)      // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)            // POST
	mux.HandleFunc("/api/questionnaire", rt.handleQuestionnaire) // GET
	mux.HandleFunc("/api/score", rt.handleScore)                 // POST
	mux.Handle("/api/assessments", middleware.RequireAuth(http.HandlerFunc(rt.handleAssessments)))
	mux.Handle("/api/assessments/", middleware.RequireAuth(http.HandlerFunc(rt.handleAssessmentScoped)))
	mux.Handle("/api/images/", middleware.RequireAuth(http.HandlerFunc(rt.handleImage)))
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusForCode(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorTooManyRequests:
		return http.StatusTooManyRequests
	case services.ErrorBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if se, ok := services.AsServiceError(err); ok {
		writeErrorMessage(w, statusForCode(se.Code), se.Message)
		return
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, "request too large")
		return
	}
	rt.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	writeErrorMessage(w, http.StatusInternalServerError, "internal error")
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return services.NewInvalidError("invalid JSON body: " + err.Error())
	}
	return nil
}

func userID(r *http.Request) string {
	uid, _ := middleware.UserIDFromContext(r.Context())
	return uid
}

// resultView adds the localized likelihood label to a result.
type resultView struct {
	services.AssessmentResult
	LikelihoodLabel string `json:"likelihood_label"`
}

type recordView struct {
	ID          string                        `json:"id"`
	CreatedAt   time.Time                     `json:"created_at"`
	Answers     services.QuestionnaireAnswers `json:"answers"`
	Predictions []services.Prediction         `json:"predictions,omitempty"`
	Result      resultView                    `json:"result"`
	ImageID     string                        `json:"image_id,omitempty"`
	ImageURL    string                        `json:"image_url,omitempty"`
}

func newResultView(res services.AssessmentResult, locale string) resultView {
	return resultView{AssessmentResult: res, LikelihoodLabel: utils.T(locale, "likelihood."+string(res.Likelihood))}
}

func newRecordView(rec *services.AssessmentRecord, locale string) recordView {
	v := recordView{
		ID:          rec.ID,
		CreatedAt:   rec.CreatedAt,
		Answers:     rec.Answers,
		Predictions: rec.Predictions,
		Result:      newResultView(rec.Result, locale),
		ImageID:     rec.ImageID,
	}
	if rec.ImageID != "" {
		v.ImageURL = "/api/images/" + rec.ImageID
	}
	return v
}

// --- auth ---

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": res.Token, "user_id": res.UserID})
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": res.Token, "user_id": res.UserID})
}

// --- questionnaire & scoring ---

// GET /api/questionnaire
func (rt *Router) handleQuestionnaire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"vocabulary": services.QuestionnaireVocabulary(),
		"disclaimer": utils.T(locale, "disclaimer"),
	})
}

type scoreRequest struct {
	Answers     services.QuestionnaireAnswers `json:"answers"`
	Predictions []services.Prediction         `json:"predictions"`
}

// POST /api/score; a preview, nothing is stored
func (rt *Router) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.assessments.Preview(req.Answers, req.Predictions)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultView(res, middleware.LocaleFromContext(r.Context())))
}

// --- assessments ---

// GET|POST /api/assessments
func (rt *Router) handleAssessments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.createAssessment(w, r)
	case http.MethodGet:
		rt.listAssessments(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (rt *Router) createAssessment(w http.ResponseWriter, r *http.Request) {
	req, err := rt.parseAssessRequest(w, r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rec, err := rt.assessments.Assess(r.Context(), userID(r), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/assessments/"+rec.ID)
	writeJSON(w, http.StatusCreated, newRecordView(rec, middleware.LocaleFromContext(r.Context())))
}

// parseAssessRequest accepts either a JSON body or a multipart form with an
// "answers" JSON field, an optional "predictions" JSON field and an optional
// "image" file.
func (rt *Router) parseAssessRequest(w http.ResponseWriter, r *http.Request) (services.AssessRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body scoreRequest
		if err := decodeJSON(w, r, &body); err != nil {
			return services.AssessRequest{}, err
		}
		return services.AssessRequest{Answers: body.Answers, Predictions: body.Predictions}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.maxImageBytes+multipartOverhead)
	if err := r.ParseMultipartForm(rt.maxImageBytes + multipartOverhead); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return services.AssessRequest{}, err
		}
		return services.AssessRequest{}, services.NewInvalidError("invalid multipart form: " + err.Error())
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	var req services.AssessRequest
	raw := r.FormValue("answers")
	if strings.TrimSpace(raw) == "" {
		return req, services.NewInvalidError("answers field required")
	}
	if err := json.Unmarshal([]byte(raw), &req.Answers); err != nil {
		return req, services.NewInvalidError("invalid answers JSON: " + err.Error())
	}
	if p := r.FormValue("predictions"); strings.TrimSpace(p) != "" {
		if err := json.Unmarshal([]byte(p), &req.Predictions); err != nil {
			return req, services.NewInvalidError("invalid predictions JSON: " + err.Error())
		}
	}

	file, _, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, nil
	case err != nil:
		return req, services.NewInvalidError("invalid image upload: " + err.Error())
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, rt.maxImageBytes+1))
	if err != nil {
		return req, fmt.Errorf("read image: %w", err)
	}
	req.Image = data
	return req, nil
}

// GET /api/assessments?limit=N
func (rt *Router) listAssessments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErrorMessage(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	recs, err := rt.assessments.List(r.Context(), userID(r), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	out := make([]recordView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, newRecordView(rec, locale))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": out, "count": len(out)})
}

// /api/assessments/{id} | /api/assessments/summary | /api/assessments/export
func (rt *Router) handleAssessmentScoped(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/assessments/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeErrorMessage(w, http.StatusNotFound, "not found")
		return
	}
	switch id {
	case "summary":
		rt.handleSummary(w, r)
		return
	case "export":
		rt.handleExport(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, err := rt.assessments.Get(r.Context(), userID(r), id)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newRecordView(rec, middleware.LocaleFromContext(r.Context())))
	case http.MethodDelete:
		if err := rt.assessments.Delete(r.Context(), userID(r), id); err != nil {
			rt.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

// GET /api/assessments/summary
func (rt *Router) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	sum, err := rt.assessments.Summary(r.Context(), userID(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	labels := map[services.Likelihood]string{}
	for l := range sum.ByLikelihood {
		labels[l] = utils.T(locale, "likelihood."+string(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": sum, "labels": labels})
}

// GET /api/assessments/export
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	b, err := rt.assessments.ExportCSV(r.Context(), userID(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=assessments.csv")
	_, _ = w.Write(b)
}

// GET /api/images/{id}
func (rt *Router) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/images/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeErrorMessage(w, http.StatusNotFound, "not found")
		return
	}
	img, err := rt.assessments.Image(r.Context(), userID(r), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("ETag", `"`+img.SHA256+`"`)
	_, _ = w.Write(img.Data)
}
