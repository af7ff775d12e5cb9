package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kcwrites/agenthub/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return repo
}

func TestInsertAndListExtractions(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	first := &domain.Extraction{
		ID:          "ext-1",
		ProductName: "Acetone",
		Hazards:     []string{"Highly flammable"},
		FileName:    "acetone-sds.pdf",
		FileType:    "application/pdf",
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	second := &domain.Extraction{
		ID:          "ext-2",
		ProductName: "Ethanol",
		FileName:    "ethanol-sds.pdf",
		FileType:    "application/pdf",
		CreatedAt:   time.Now(),
	}

	if err := repo.InsertExtraction(ctx, first); err != nil {
		t.Fatalf("InsertExtraction: %v", err)
	}
	if err := repo.InsertExtraction(ctx, second); err != nil {
		t.Fatalf("InsertExtraction: %v", err)
	}

	got, err := repo.ListExtractions(ctx)
	if err != nil {
		t.Fatalf("ListExtractions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 extractions, got %d", len(got))
	}
	if got[0].ID != "ext-2" {
		t.Errorf("expected newest first, got %s", got[0].ID)
	}
	if got[1].ProductName != "Acetone" {
		t.Errorf("unexpected product name: %s", got[1].ProductName)
	}
	if len(got[1].Hazards) != 1 || got[1].Hazards[0] != "Highly flammable" {
		t.Errorf("hazards did not round-trip: %v", got[1].Hazards)
	}
}

func TestGetConversationMissing(t *testing.T) {
	repo := newTestStore(t)

	conv, err := repo.GetConversation(context.Background(), "anon_missing", "default")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv != nil {
		t.Fatalf("expected nil for missing conversation, got %+v", conv)
	}
}

func TestUpsertConversationRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	conv := &domain.Conversation{
		UserID:    "anon_abc",
		SessionID: "default",
		AgentID:   "inspiration",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Text: "hello", Final: true},
			{Role: domain.RoleAssistant, Text: "hi there", Final: true},
		},
	}
	if err := repo.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation: %v", err)
	}

	got, err := repo.GetConversation(ctx, "anon_abc", "default")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got == nil {
		t.Fatal("expected conversation, got nil")
	}
	if got.AgentID != "inspiration" {
		t.Errorf("agent_id: got %s", got.AgentID)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[1].Role != domain.RoleAssistant || got.Messages[1].Text != "hi there" {
		t.Errorf("message did not round-trip: %+v", got.Messages[1])
	}

	// Second upsert replaces the transcript.
	conv.Messages = append(conv.Messages, domain.Message{Role: domain.RoleUser, Text: "more", Final: true})
	conv.AgentID = "technical"
	if err := repo.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation (update): %v", err)
	}

	got, err = repo.GetConversation(ctx, "anon_abc", "default")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Errorf("expected 3 messages after update, got %d", len(got.Messages))
	}
	if got.AgentID != "technical" {
		t.Errorf("agent_id after update: got %s", got.AgentID)
	}
}

func TestConversationsAreScopedBySession(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	for _, sid := range []string{"tab-1", "tab-2"} {
		conv := &domain.Conversation{
			UserID:    "anon_abc",
			SessionID: sid,
			AgentID:   "inspiration",
			Messages:  []domain.Message{{Role: domain.RoleUser, Text: sid, Final: true}},
		}
		if err := repo.UpsertConversation(ctx, conv); err != nil {
			t.Fatalf("UpsertConversation(%s): %v", sid, err)
		}
	}

	got, err := repo.GetConversation(ctx, "anon_abc", "tab-2")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Messages[0].Text != "tab-2" {
		t.Errorf("session scoping broken: %s", got.Messages[0].Text)
	}
}

func TestDeleteConversation(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	conv := &domain.Conversation{
		UserID:    "anon_abc",
		SessionID: "default",
		AgentID:   "inspiration",
		Messages:  []domain.Message{{Role: domain.RoleUser, Text: "hi", Final: true}},
	}
	if err := repo.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation: %v", err)
	}
	if err := repo.DeleteConversation(ctx, "anon_abc", "default"); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	got, err := repo.GetConversation(ctx, "anon_abc", "default")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got != nil {
		t.Fatal("expected conversation to be deleted")
	}
}

func TestCleanupExpiredConversations(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	conv := &domain.Conversation{
		UserID:    "anon_old",
		SessionID: "default",
		AgentID:   "inspiration",
		Messages:  []domain.Message{{Role: domain.RoleUser, Text: "old", Final: true}},
	}
	if err := repo.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation: %v", err)
	}

	// Nothing is older than a day yet.
	deleted, err := repo.CleanupExpiredConversations(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredConversations: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 deleted, got %d", deleted)
	}

	// A negative TTL places the threshold in the future, expiring everything.
	deleted, err = repo.CleanupExpiredConversations(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredConversations: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}
