package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultListLimit     = 50
	maxListLimit         = 500
	defaultMaxImageBytes = 10 << 20
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// AssessRequest carries one finished questionnaire. A non-nil Predictions
// slice is used as-is and the classifier is not called.
type AssessRequest struct {
	Answers     QuestionnaireAnswers
	Predictions []Prediction
	Image       []byte
}

// AssessmentService hosts the assessment workflow without HTTP concerns.
type AssessmentService struct {
	store           AssessmentStore
	classifier      Classifier
	logger          zerolog.Logger
	now             func() time.Time
	idGen           func() string
	maxImageBytes   int
	classifyTimeout time.Duration
}

type AssessmentOption func(*AssessmentService)

// WithClassifier enables image classification. A nil classifier disables it.
func WithClassifier(c Classifier) AssessmentOption {
	return func(s *AssessmentService) { s.classifier = c }
}

func WithLogger(l zerolog.Logger) AssessmentOption {
	return func(s *AssessmentService) { s.logger = l }
}

func WithMaxImageBytes(n int) AssessmentOption {
	return func(s *AssessmentService) {
		if n > 0 {
			s.maxImageBytes = n
		}
	}
}

// WithClassifyTimeout bounds a single classifier call, retries included.
func WithClassifyTimeout(d time.Duration) AssessmentOption {
	return func(s *AssessmentService) { s.classifyTimeout = d }
}

func NewAssessmentService(store AssessmentStore, opts ...AssessmentOption) *AssessmentService {
	s := &AssessmentService{
		store:         store,
		logger:        zerolog.Nop(),
		now:           func() time.Time { return time.Now().UTC() },
		idGen:         newID,
		maxImageBytes: defaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview scores validated answers without storing anything.
func (s *AssessmentService) Preview(answers QuestionnaireAnswers, predictions []Prediction) (AssessmentResult, error) {
	if err := answers.Validate(); err != nil {
		return AssessmentResult{}, err
	}
	return Score(answers, predictions), nil
}

func (s *AssessmentService) Assess(ctx context.Context, userID string, req AssessRequest) (*AssessmentRecord, error) {
	if s.store == nil {
		return nil, errors.New("assessment service store is nil")
	}
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	if err := req.Answers.Validate(); err != nil {
		return nil, err
	}

	var img *Image
	if len(req.Image) > 0 {
		var err error
		if img, err = s.newImage(userID, req.Image); err != nil {
			return nil, err
		}
		if err := s.store.AddImage(ctx, img); err != nil {
			return nil, err
		}
	}

	predictions := req.Predictions
	if predictions == nil && img != nil {
		predictions = s.classify(ctx, img)
	}

	rec := &AssessmentRecord{
		ID:          s.idGen(),
		UserID:      userID,
		Answers:     req.Answers,
		Predictions: predictions,
		Result:      Score(req.Answers, predictions),
		CreatedAt:   s.now(),
	}
	if img != nil {
		rec.ImageID = img.ID
	}
	if err := s.store.AddAssessment(ctx, rec); err != nil {
		if img != nil {
			if _, derr := s.store.DeleteImage(ctx, img.ID); derr != nil {
				s.logger.Warn().Err(derr).Str("image_id", img.ID).Msg("orphaned image cleanup failed")
			}
		}
		return nil, err
	}
	s.logger.Info().
		Str("assessment_id", rec.ID).
		Str("user_id", userID).
		Str("likelihood", string(rec.Result.Likelihood)).
		Int("score", rec.Result.Score).
		Int("predictions", len(predictions)).
		Msg("assessment recorded")
	return rec, nil
}

func (s *AssessmentService) newImage(userID string, data []byte) (*Image, error) {
	if len(data) > s.maxImageBytes {
		return nil, NewInvalidError("image too large")
	}
	ct := http.DetectContentType(data)
	if _, ok := allowedImageTypes[ct]; !ok {
		return nil, NewInvalidError("unsupported image type " + ct)
	}
	sum := sha256.Sum256(data)
	return &Image{
		ID:          s.idGen(),
		UserID:      userID,
		ContentType: ct,
		SHA256:      hex.EncodeToString(sum[:]),
		Data:        data,
		CreatedAt:   s.now(),
	}, nil
}

// classify never fails: an unavailable classifier yields no predictions.
func (s *AssessmentService) classify(ctx context.Context, img *Image) []Prediction {
	if s.classifier == nil {
		return nil
	}
	if s.classifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.classifyTimeout)
		defer cancel()
	}
	preds, err := s.classifier.Classify(ctx, img.Data)
	if err != nil {
		s.logger.Warn().Err(err).Str("image_id", img.ID).Msg("classifier unavailable, scoring without predictions")
		return nil
	}
	return preds
}

func (s *AssessmentService) List(ctx context.Context, userID string, limit int) ([]*AssessmentRecord, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.ListAssessmentsByUser(ctx, userID, limit)
}

func (s *AssessmentService) Get(ctx context.Context, userID, id string) (*AssessmentRecord, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	rec, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	// other users' records are reported as missing
	if rec == nil || rec.UserID != userID {
		return nil, NewNotFoundError("assessment not found")
	}
	return rec, nil
}

func (s *AssessmentService) Delete(ctx context.Context, userID, id string) error {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	ok, err := s.store.DeleteAssessment(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("assessment not found")
	}
	if rec.ImageID != "" {
		if _, err := s.store.DeleteImage(ctx, rec.ImageID); err != nil {
			return err
		}
	}
	s.logger.Info().Str("assessment_id", rec.ID).Str("user_id", userID).Msg("assessment deleted")
	return nil
}

func (s *AssessmentService) Image(ctx context.Context, userID, id string) (*Image, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	img, err := s.store.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	if img == nil || img.UserID != userID {
		return nil, NewNotFoundError("image not found")
	}
	return img, nil
}

// ExportCSV renders the user's full history, newest first.
func (s *AssessmentService) ExportCSV(ctx context.Context, userID string) ([]byte, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	recs, err := s.store.ListAssessmentsByUser(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	return ExportAssessmentsCSV(recs)
}

func (s *AssessmentService) Summary(ctx context.Context, userID string) (*AssessmentSummary, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	recs, err := s.store.ListAssessmentsByUser(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	return Summarize(recs), nil
}
