package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, handler http.HandlerFunc) *ConversationRepository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	repo, err := NewConversationRepository(Config{URL: srv.URL, APIKey: "service-key"})
	require.NoError(t, err)
	return repo
}

func TestNewConversationRepositoryRequiresConfig(t *testing.T) {
	_, err := NewConversationRepository(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = NewConversationRepository(Config{URL: "http://localhost"})
	assert.Error(t, err)
}

func TestFindByIDFiltersOnUser(t *testing.T) {
	userID, convID := uuid.New(), uuid.New()
	var query map[string][]string

	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/conversations", r.URL.Path)
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{{
			"id":            convID.String(),
			"user_id":       userID.String(),
			"title":         "What is X?",
			"messages":      []map[string]string{{"role": "user", "content": "What is X?"}},
			"selected_docs": []interface{}{"d1", 7},
			"session_token": nil,
			"created_at":    "2024-05-01T10:00:00.123456+00:00",
			"updated_at":    "2024-05-01T10:00:00.123456+00:00",
		}})
	})

	conv, err := repo.FindByID(context.Background(), userID, convID)

	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, []string{"eq." + userID.String()}, query["user_id"])
	assert.Equal(t, []string{"eq." + convID.String()}, query["id"])
	assert.Equal(t, "What is X?", conv.Title)
	assert.Equal(t, []entity.DocumentID{"d1", "7"}, conv.SelectedDocs)
	assert.Nil(t, conv.SessionToken)
}

func TestFindAllByUserSortsNewestFirst(t *testing.T) {
	userID := uuid.New()
	older, newer := uuid.New(), uuid.New()

	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq."+userID.String(), r.URL.Query().Get("user_id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]conversationRow{
			{Id: older, UserId: userID, UpdatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
			{Id: newer, UserId: userID, UpdatedAt: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
		})
	})

	all, err := repo.FindAllByUser(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer, all[0].Id)
	assert.Equal(t, older, all[1].Id)
}

func TestDeleteReportsMissingRecord(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})

	err := repo.Delete(context.Background(), uuid.New(), uuid.New())

	assert.ErrorIs(t, err, contract.ErrConversationNotFound)
}
