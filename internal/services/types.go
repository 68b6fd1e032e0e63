package services

import (
	"context"
	"time"
)

// AssessmentRecord is the persisted copy of one assessment run.
type AssessmentRecord struct {
	ID          string               `json:"id"`
	UserID      string               `json:"user_id"`
	Answers     QuestionnaireAnswers `json:"answers"`
	Predictions []Prediction         `json:"predictions,omitempty"`
	Result      AssessmentResult     `json:"result"`
	ImageID     string               `json:"image_id,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

type User struct {
	ID        string
	Email     string
	PassHash  []byte
	CreatedAt time.Time
}

// Image is an uploaded rash photo.
type Image struct {
	ID          string
	UserID      string
	ContentType string
	SHA256      string
	Data        []byte
	CreatedAt   time.Time
}

// Classifier turns an image into predictions. Implementations may fail or be
// slow; callers treat any error as "no predictions".
type Classifier interface {
	Classify(ctx context.Context, image []byte) ([]Prediction, error)
}

// AssessmentStore abstracts persistence operations required by AssessmentService.
type AssessmentStore interface {
	AddAssessment(ctx context.Context, rec *AssessmentRecord) error
	GetAssessment(ctx context.Context, id string) (*AssessmentRecord, error)
	ListAssessmentsByUser(ctx context.Context, userID string, limit int) ([]*AssessmentRecord, error)
	DeleteAssessment(ctx context.Context, id string) (bool, error)

	AddImage(ctx context.Context, img *Image) error
	GetImage(ctx context.Context, id string) (*Image, error)
	DeleteImage(ctx context.Context, id string) (bool, error)
}
