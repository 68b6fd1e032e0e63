package api

import "github.com/soaringjerry/Spotcheck/internal/services"

// Store is everything the HTTP layer persists: users plus assessment
// records and their images. db.SQLiteStore and MemoryStore implement it.
type Store interface {
	services.AuthStore
	services.AssessmentStore
}
