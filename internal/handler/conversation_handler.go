package handler

import (
	"bytes"
	"net/http"

	"github.com/Sandro385/expert-tune/internal/dataset"
	"github.com/Sandro385/expert-tune/internal/model"
	"github.com/Sandro385/expert-tune/internal/service"
	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler serves the interview of the authenticated user in one domain.
type ConversationHandler struct {
	chatService     service.ChatService
	fineTuneService service.FineTuneService
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(chatService service.ChatService, fineTuneService service.FineTuneService) *ConversationHandler {
	return &ConversationHandler{chatService: chatService, fineTuneService: fineTuneService}
}

// SubmitMessageRequest is the body of a submitted answer.
type SubmitMessageRequest struct {
	Content string `json:"content"`
}

func conversationKey(c *gin.Context) model.ConversationKey {
	return model.ConversationKey{Username: currentUser(c).Username, Domain: c.Param("domain")}
}

// ListDomains returns the configured interview domains.
func (h *ConversationHandler) ListDomains(c *gin.Context) {
	ok(c, http.StatusOK, "success", h.chatService.Domains())
}

// GetTranscript returns the session transcript, loading it on first access.
func (h *ConversationHandler) GetTranscript(c *gin.Context) {
	key := conversationKey(c)
	turns, err := h.chatService.Transcript(c.Request.Context(), key)
	if err != nil {
		failWithError(c, "GetTranscript", err)
		return
	}
	ok(c, http.StatusOK, "success", gin.H{"domain": key.Domain, "messages": turns})
}

// SubmitMessage records an answer and returns the next assistant turn. A provider
// failure still returns 200 with the apology and a warning.
func (h *ConversationHandler) SubmitMessage(c *gin.Context) {
	var req SubmitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	key := conversationKey(c)
	reply, err := h.chatService.Submit(c.Request.Context(), key, req.Content, nil)
	if err != nil {
		failWithError(c, "SubmitMessage", err)
		return
	}

	data := gin.H{"reply": reply.Message}
	if reply.Warning != nil {
		log.Warnw("SubmitMessage: provider warning", "conversation", key.String(), "error", reply.Warning)
		data["warning"] = reply.Warning.Error()
	}
	ok(c, http.StatusOK, "success", data)
}

// PreviewDataset renders the training records of the stored conversation as JSONL.
func (h *ConversationHandler) PreviewDataset(c *gin.Context) {
	records, err := h.fineTuneService.Preview(c.Request.Context(), conversationKey(c))
	if err != nil {
		failWithError(c, "PreviewDataset", err)
		return
	}
	var buf bytes.Buffer
	if err := dataset.WriteJSONL(&buf, records); err != nil {
		failWithError(c, "PreviewDataset", err)
		return
	}
	c.Data(http.StatusOK, "application/x-ndjson; charset=utf-8", buf.Bytes())
}
