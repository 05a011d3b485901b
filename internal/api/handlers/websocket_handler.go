package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/middleware/validation"
	"github.com/BarAvidan1996/eilam-sub000/internal/rag"
	"github.com/BarAvidan1996/eilam-sub000/internal/session"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

type WebSocketHandler struct {
	answerer    Answerer
	sessions    ChatService
	maxQuestion int
}

func NewWebSocketHandler(answerer Answerer, sessions ChatService, maxQuestion int) *WebSocketHandler {
	if maxQuestion <= 0 {
		maxQuestion = 2000
	}
	return &WebSocketHandler{
		answerer:    answerer,
		sessions:    sessions,
		maxQuestion: maxQuestion,
	}
}

type wsRequest struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsRequest
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "query" {
			continue
		}

		question, err := validation.CleanQuestion(msg.Content, h.maxQuestion)
		if err != nil {
			h.sendError(c, err.Error())
			continue
		}

		if err := h.streamResponse(ctx, c, question, msg); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, errorMessage(err))
		}
	}
}

func errorMessage(err error) string {
	if errors.Is(err, session.ErrSessionNotFound) {
		return "Session not found"
	}
	return "Failed to process question"
}

func (h *WebSocketHandler) streamResponse(ctx context.Context, c *websocket.Conn, question string, msg wsRequest) error {
	if err := h.sendChunk(c, "status", "Processing question..."); err != nil {
		return err
	}

	var (
		result *rag.Result
		err    error
	)
	if msg.SessionID != "" && h.sessions != nil {
		result, err = h.sessions.Chat(ctx, msg.SessionID, question)
	} else {
		result, err = h.answerer.Answer(ctx, rag.Request{Question: question, UserID: msg.UserID})
	}
	if err != nil {
		return err
	}

	words := splitIntoWords(result.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, result)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, result *rag.Result) error {
	msg := map[string]interface{}{
		"type":           "complete",
		"queryId":        result.QueryID,
		"sources":        result.Sources,
		"usedFallback":   result.UsedFallback,
		"usedWebSearch":  result.UsedWebSearch,
		"usedCache":      result.UsedCache,
		"documentsFound": result.DocumentsFound,
	}
	if result.DebugError != "" {
		msg["debugError"] = result.DebugError
	}
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	if err := c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}); err != nil {
		logger.Debug("Failed to send WebSocket error", zap.Error(err))
	}
}

// splitIntoWords splits on spaces, keeping each newline as its own token.
func splitIntoWords(text string) []string {
	words := []string{}
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch r {
		case ' ':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return words
}
