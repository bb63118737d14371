// ABOUTME: HTTP handlers for the conversation and message endpoints
// ABOUTME: Decodes requests, calls the messaging service, maps errors to status codes

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Qhojoblinks-7/vukalink-sub000/internal/auth"
	"github.com/Qhojoblinks-7/vukalink-sub000/internal/messaging"
	"github.com/Qhojoblinks-7/vukalink-sub000/internal/store"
)

type handlers struct {
	service     *messaging.Service
	broadcaster *messaging.Broadcaster
	sendTimeout time.Duration
	origins     []string
	logger      *slog.Logger
}

// Request bodies

type startConversationRequest struct {
	ParticipantID string `json:"participant_id"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// Response bodies

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type conversationResponse struct {
	ID            string     `json:"id"`
	OtherUserID   string     `json:"other_user_id"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

type conversationSummaryResponse struct {
	ID          string           `json:"id"`
	OtherUserID string           `json:"other_user_id"`
	UnreadCount int              `json:"unread_count"`
	CreatedAt   time.Time        `json:"created_at"`
	LastMessage *messageResponse `json:"last_message,omitempty"`
}

func renderMessage(m *store.Message) *messageResponse {
	return &messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

func (h *handlers) startConversation(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.service.StartConversation(r.Context(), id.UserID, req.ParticipantID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, &conversationResponse{
		ID:            conv.ID,
		OtherUserID:   conv.OtherParticipant(id.UserID),
		CreatedAt:     conv.CreatedAt,
		LastMessageAt: conv.LastMessageAt,
	})
}

func (h *handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	summaries, err := h.service.FetchConversations(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]*conversationSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		resp := &conversationSummaryResponse{
			ID:          s.Conversation.ID,
			OtherUserID: s.OtherUserID,
			UnreadCount: s.UnreadCount,
			CreatedAt:   s.Conversation.CreatedAt,
		}
		if s.LastMessage != nil {
			resp.LastMessage = renderMessage(s.LastMessage)
		}
		out = append(out, resp)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	messages, err := h.service.FetchMessages(r.Context(), conversationID, id.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]*messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, renderMessage(m))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if h.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.sendTimeout)
		defer cancel()
	}

	msg, err := h.service.SendMessage(ctx, conversationID, id.UserID, req.Content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, renderMessage(msg))
}

func (h *handlers) markRead(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.service.MarkConversationRead(r.Context(), conversationID, id.UserID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps messaging errors onto HTTP status codes.
func (h *handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, messaging.ErrInvalidParticipants),
		errors.Is(err, messaging.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, messaging.ErrMessageTooLong):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, messaging.ErrNotAParticipant):
		status = http.StatusForbidden
	case errors.Is(err, messaging.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, messaging.ErrConflictRetryExhausted):
		status = http.StatusConflict
	case errors.Is(err, messaging.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, messaging.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		return
	default:
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err)
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
