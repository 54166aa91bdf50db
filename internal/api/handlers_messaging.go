package api

import (
	"net/http"

	"github.com/estrella/internal/service"
	"github.com/gorilla/mux"
)

// handleSendMessage handles POST /api/messages
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	senderID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req struct {
		RecipientID string `json:"recipientId"`
		Content     string `json:"content"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondInvalidBody(w, err)
		return
	}

	msg, err := s.messagingService.SendMessage(r.Context(), &service.SendMessageInput{
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, msg)
}

// handleSendBeer handles POST /api/beers - invite another user to a beer
func (s *Server) handleSendBeer(w http.ResponseWriter, r *http.Request) {
	senderID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req struct {
		RecipientID string `json:"recipientId"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondInvalidBody(w, err)
		return
	}

	result, err := s.messagingService.SendBeer(r.Context(), senderID, req.RecipientID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// handleListBeers handles GET /api/beers - beers the caller has received
func (s *Server) handleListBeers(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	beers, err := s.messagingService.ListBeers(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"beers": beers,
		"count": len(beers),
	})
}

// handleResolveConversation handles POST /api/conversations - open (or find) the
// conversation with another user
func (s *Server) handleResolveConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req struct {
		OtherUserID string `json:"otherUserId"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondInvalidBody(w, err)
		return
	}

	conv, err := s.messagingService.ResolveConversation(r.Context(), userID, req.OtherUserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, conv)
}

// handleListConversations handles GET /api/conversations - the caller's inbox
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	conversations, err := s.messagingService.ListConversations(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// handleListMessages handles GET /api/conversations/{id}/messages?limit=N
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	limit, ok := parseIntParam(w, r.URL.Query().Get("limit"), "limit")
	if !ok {
		return
	}

	conversationID := mux.Vars(r)["id"]
	messages, err := s.messagingService.ListMessages(r.Context(), conversationID, userID, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversationId": conversationID,
		"messages":       messages,
		"count":          len(messages),
	})
}

// handleMarkRead handles POST /api/conversations/{id}/read
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	conversationID := mux.Vars(r)["id"]
	marked, err := s.messagingService.MarkRead(r.Context(), conversationID, userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversationId": conversationID,
		"marked":         marked,
	})
}
