package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/suricare/suricare/internal/assistant"
	"github.com/suricare/suricare/internal/childctx"
	"github.com/suricare/suricare/internal/guardrail"
	"github.com/suricare/suricare/internal/knowledge"
	"github.com/suricare/suricare/internal/models"
)

// chatReply is the body of a single-shot chat answer.
type chatReply struct {
	Reply        string             `json:"reply"`
	ContextUsed  string             `json:"context_used,omitempty"`
	Sources      []knowledge.Source `json:"sources"`
	ResponseType string             `json:"response_type"`
	Guardrail    *guardrail.Result  `json:"guardrail,omitempty"`
}

// decodeChatRequest reads and validates a chat request. contextual selects the stricter
// validation of the child-specific endpoints.
func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request, contextual bool) (models.ChatRequest, bool) {
	var req models.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid JSON format"))
		return req, false
	}
	validate := req.Validate
	if contextual {
		validate = req.ValidateContextual
	}
	if err := validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return req, false
	}
	if req.ChatID != "" {
		if _, err := uuid.Parse(req.ChatID); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid chat_id"))
			return req, false
		}
		if _, err := s.st.GetChat(r.Context(), req.ChatID); err != nil {
			writeStoreError(w, "getChat", err, "Chat not found")
			return req, false
		}
	}
	return req, true
}

// assistantRequest builds the orchestrator request, resolving the child context for the
// contextual endpoints. The child must belong to the requesting carer.
func (s *Server) assistantRequest(w http.ResponseWriter, r *http.Request, req models.ChatRequest, contextual bool) (assistant.Request, bool) {
	out := assistant.Request{Query: req.Message, ChildContext: childctx.GeneralContext, ChatID: req.ChatID}
	if !contextual {
		return out, true
	}
	child, err := s.st.GetChild(r.Context(), req.ChildID)
	if err != nil || child.CarerID != req.CarerID {
		if err != nil {
			slog.Debug("Server.assistantRequest: child lookup failed", "child_id", req.ChildID, "error", err)
		}
		writeJSONResponse(w, http.StatusNotFound, errorResponse(fmt.Sprintf("Child %d not found or access denied", req.ChildID)))
		return out, false
	}
	out.ChildID = child.ID
	out.ChildContext = s.asst.ContextFor(r.Context(), child, req.Message)
	return out, true
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, contextual bool) {
	req, ok := s.decodeChatRequest(w, r, contextual)
	if !ok {
		return
	}
	areq, ok := s.assistantRequest(w, r, req, contextual)
	if !ok {
		return
	}
	resp := s.asst.Ask(r.Context(), areq)
	reply := chatReply{
		Reply:        resp.Response,
		Sources:      resp.Sources,
		ResponseType: resp.ResponseType,
		Guardrail:    resp.Guardrail,
	}
	if contextual {
		reply.ContextUsed = resp.ContextUsed
	}
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

// chatHandler handles POST /chat
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, false)
}

// contextualChatHandler handles POST /chat/contextual
func (s *Server) contextualChatHandler(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, true)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, contextual bool) {
	req, ok := s.decodeChatRequest(w, r, contextual)
	if !ok {
		return
	}
	areq, ok := s.assistantRequest(w, r, req, contextual)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events := 0
	for ev := range s.asst.Stream(r.Context(), areq) {
		if err := writeEvent(w, rc, ev); err != nil {
			slog.Debug("Server.stream: client went away", "events", events, "error", err)
			return
		}
		events++
	}
	slog.Debug("Server.stream: stream finished", "child_id", areq.ChildID, "events", events)
}

// writeEvent writes one server-sent event and flushes it.
func writeEvent(w http.ResponseWriter, rc *http.ResponseController, ev assistant.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}

// chatStreamHandler handles POST /chat/stream
func (s *Server) chatStreamHandler(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, false)
}

// contextualChatStreamHandler handles POST /chat/contextual/stream
func (s *Server) contextualChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, true)
}

// createChatHandler handles POST /chats
func (s *Server) createChatHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChatCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if req.ChildID != nil {
		child, err := s.st.GetChild(r.Context(), *req.ChildID)
		if err != nil || child.CarerID != req.OwnerID {
			writeJSONResponse(w, http.StatusNotFound, errorResponse(fmt.Sprintf("Child %d not found or access denied", *req.ChildID)))
			return
		}
	}
	chat := models.Chat{Title: req.Title, OwnerID: req.OwnerID, ChildID: req.ChildID}
	if err := s.st.CreateChat(r.Context(), &chat); err != nil {
		writeStoreError(w, "createChat", err, "Chat not found")
		return
	}
	slog.Info("Server.createChatHandler: chat created", "chat_id", chat.ID, "owner_id", chat.OwnerID)
	writeJSONResponse(w, http.StatusCreated, models.Recorded(chat))
}

// listChatsHandler handles GET /carers/{carerID}/chats?child_id=N. With child_id, chats
// about that child and general chats are returned.
func (s *Server) listChatsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, err := int64Param(r, "carerID")
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	var childID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("child_id")); raw != "" {
		childID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || childID <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, errorResponse("invalid child_id"))
			return
		}
	}
	chats, err := s.st.ListChats(r.Context(), ownerID)
	if err != nil {
		writeStoreError(w, "listChats", err, "Carer not found")
		return
	}
	if childID > 0 {
		filtered := chats[:0]
		for _, c := range chats {
			if c.ChildID == nil || *c.ChildID == childID {
				filtered = append(filtered, c)
			}
		}
		chats = filtered
	}
	writeJSONResponse(w, http.StatusOK, models.Success(chats))
}

// chatIDParam parses the {chatID} parameter.
func chatIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "chatID")
	if _, err := uuid.Parse(id); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid chat id"))
		return "", false
	}
	return id, true
}

// getChatHandler handles GET /chats/{chatID}
func (s *Server) getChatHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	chat, err := s.st.GetChat(r.Context(), id)
	if err != nil {
		writeStoreError(w, "getChat", err, "Chat not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(chat))
}

// renameChatHandler handles PUT /chats/{chatID}
func (s *Server) renameChatHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	var req models.ChatUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid JSON format"))
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("title is required"))
		return
	}
	if len(title) > models.MaxChatTitleLength {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(models.ErrTitleTooLong.Error()))
		return
	}
	if err := s.st.RenameChat(r.Context(), id, title); err != nil {
		writeStoreError(w, "renameChat", err, "Chat not found")
		return
	}
	chat, err := s.st.GetChat(r.Context(), id)
	if err != nil {
		writeStoreError(w, "getChat", err, "Chat not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(chat))
}

// deleteChatHandler handles DELETE /chats/{chatID}
func (s *Server) deleteChatHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	if err := s.st.DeleteChat(r.Context(), id); err != nil {
		writeStoreError(w, "deleteChat", err, "Chat not found")
		return
	}
	slog.Info("Server.deleteChatHandler: chat deleted", "chat_id", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Chat deleted successfully", nil))
}

// listMessagesHandler handles GET /chats/{chatID}/messages
func (s *Server) listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	if _, err := s.st.GetChat(r.Context(), id); err != nil {
		writeStoreError(w, "getChat", err, "Chat not found")
		return
	}
	msgs, err := s.st.ListMessages(r.Context(), id)
	if err != nil {
		writeStoreError(w, "listMessages", err, "Chat not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(msgs))
}

// addMessageHandler handles POST /chats/{chatID}/messages
func (s *Server) addMessageHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	var m models.ChatMessage
	if err := decodeJSON(r, &m); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid JSON format"))
		return
	}
	m.ID = ""
	m.ChatID = id
	if err := m.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if err := s.st.AddMessage(r.Context(), &m); err != nil {
		writeStoreError(w, "addMessage", err, "Chat not found")
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Recorded(m))
}
