// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/kcwrites/agenthub/internal/domain"
)

// Repository defines the interface for persisting extractions and
// conversation transcripts.
type Repository interface {
	// InsertExtraction stores one extracted product record.
	InsertExtraction(ctx context.Context, e *domain.Extraction) error

	// ListExtractions returns all records ordered by created_at descending.
	ListExtractions(ctx context.Context) ([]*domain.Extraction, error)

	// GetConversation retrieves the transcript for a user/session pair.
	// Returns (nil, nil) when none exists.
	GetConversation(ctx context.Context, userID, sessionID string) (*domain.Conversation, error)

	// UpsertConversation creates or updates a transcript.
	UpsertConversation(ctx context.Context, conv *domain.Conversation) error

	// DeleteConversation removes a transcript.
	DeleteConversation(ctx context.Context, userID, sessionID string) error

	// CleanupExpiredConversations removes transcripts idle longer than ttl.
	CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
