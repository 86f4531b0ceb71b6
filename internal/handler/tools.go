package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pavelanni/bandcoach/internal/apperr"
	appI18n "github.com/pavelanni/bandcoach/internal/i18n"
	"github.com/pavelanni/bandcoach/internal/llm"
	"github.com/pavelanni/bandcoach/internal/model"
)

// chatHistoryLimit bounds the turns forwarded to the model.
const chatHistoryLimit = 20

type toolRequest struct {
	TaskType model.TaskType `json:"taskType"`
	Prompt   string         `json:"prompt"`
	Text     string         `json:"text"`
}

func (h *Handler) decodeTool(w http.ResponseWriter, r *http.Request) (toolRequest, error) {
	var req toolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return req, err
	}
	if req.TaskType == "" {
		req.TaskType = model.TaskType2
	}
	tt, ok := model.ParseTaskType(string(req.TaskType))
	if !ok {
		return req, apperr.NewInvalidRequest(fmt.Sprintf("unknown task type %q", req.TaskType))
	}
	req.TaskType = tt
	return req, nil
}

func (h *Handler) handleTopic(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTool(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	topic, err := h.llm.GenerateTopic(r.Context(), req.TaskType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": topic})
}

func (h *Handler) handleBrainstorm(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTool(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ideas, err := h.llm.Brainstorm(r.Context(), req.TaskType, req.Prompt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ideas)
}

func (h *Handler) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTool(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	up, err := h.llm.UpgradeVocabulary(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (h *Handler) handleSentence(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTool(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	up, err := h.llm.UpgradeSentence(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (h *Handler) handleQuickScan(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTool(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	scan, err := h.llm.QuickScan(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": scan})
}

func (h *Handler) handleSpeech(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTool(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	audio, err := h.llm.SynthesizeSpeech(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", fmt.Sprint(len(audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// chatMessage is the body of POST /api/chat and of each websocket request.
type chatMessage struct {
	SubmissionID string              `json:"submissionId"`
	Essay        string              `json:"essay"`
	Analysis     string              `json:"analysis"`
	History      []model.ChatMessage `json:"history"`
	Message      string              `json:"message"`
}

// chatRequest grounds the question on a stored submission when one is named.
func (h *Handler) chatRequest(r *http.Request, msg chatMessage) (llm.ChatRequest, error) {
	req := llm.ChatRequest{
		Essay:    msg.Essay,
		Analysis: msg.Analysis,
		Language: appI18n.LangFromContext(r.Context()),
		History:  msg.History,
		Message:  msg.Message,
	}
	if id := strings.TrimSpace(msg.SubmissionID); id != "" {
		sub, err := h.store.GetSubmission(model.ProfileFromContext(r.Context()), id)
		if err != nil {
			return req, err
		}
		if sub == nil {
			return req, apperr.NewNotFound(id)
		}
		req.Essay = sub.Essay
		req.Analysis = analysisOf(sub.Evaluation)
	}
	if n := len(req.History); n > chatHistoryLimit {
		req.History = req.History[n-chatHistoryLimit:]
	}
	return req, nil
}

func analysisOf(e model.Evaluation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall band %.1f. ", e.OverallBand)
	if e.DetailedAnalysis != "" {
		sb.WriteString(e.DetailedAnalysis)
	} else {
		sb.WriteString(e.MentorNote)
	}
	for _, k := range e.KeyImprovements {
		sb.WriteString("\n- " + k)
	}
	return sb.String()
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var msg chatMessage
	if err := decodeJSON(w, r, &msg); err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := h.chatRequest(r, msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reply, err := h.llm.Chat(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ChatMessage{Role: model.ChatRoleExaminer, Text: reply})
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin admits clients without an Origin header, pages served from the
// request host, and the configured cross-origin sites.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	slog.Warn("websocket origin rejected", "origin", origin, "host", r.Host)
	return false
}

// streamFrame is one server-to-client websocket message.
type streamFrame struct {
	Type  string     `json:"type"` // delta, done or error
	Data  string     `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

const streamWriteWait = 10 * time.Second

func sendFrame(conn *websocket.Conn, f streamFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// handleChatStream answers chat questions over a websocket, one streamed
// reply per client message.
func (h *Handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	profileID := model.ProfileFromContext(r.Context())
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)
	slog.Debug("chat stream connected", "profile", profileID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		var msg chatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendStreamError(r, conn, apperr.NewInvalidRequest("invalid JSON: "+err.Error()))
			continue
		}
		req, err := h.chatRequest(r, msg)
		if err != nil {
			h.sendStreamError(r, conn, err)
			continue
		}
		reply, err := h.llm.ChatStream(r.Context(), req, func(delta string) error {
			return sendFrame(conn, streamFrame{Type: "delta", Data: delta})
		})
		if err != nil {
			h.sendStreamError(r, conn, err)
			continue
		}
		if err := sendFrame(conn, streamFrame{Type: "done", Data: reply}); err != nil {
			break
		}
	}
	slog.Debug("chat stream disconnected", "profile", profileID)
}

func (h *Handler) sendStreamError(r *http.Request, conn *websocket.Conn, err error) {
	status, body := describe(r.Context(), err)
	if status >= http.StatusInternalServerError {
		slog.Warn("chat stream failed", "code", body.Code, "error", err)
	}
	if err := sendFrame(conn, streamFrame{Type: "error", Error: &body}); err != nil {
		slog.Debug("failed to send stream error", "error", err)
	}
}
