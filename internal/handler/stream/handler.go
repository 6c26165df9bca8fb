package stream

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

var errStreamingUnsupported = errors.New("streaming unsupported")

// Handler pushes store snapshots to the browser via Server-Sent Events.
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger,
	}
}

// SnapshotEvent is the payload of every "snapshot" event.
type SnapshotEvent struct {
	SessionID string       `json:"sessionId"`
	Entries   []chat.Entry `json:"entries"`
}

// HandleStreamRequest sends the current snapshot and then one event per
// applied command until the client disconnects or the session closes.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errStreamingUnsupported
	}

	store, err := h.chatSvc.Store(ctx, sessionID)
	if err != nil {
		return err
	}

	updates, cancel := store.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := h.send(w, flusher, sessionID, store.Snapshot()); err != nil {
		return err
	}
	h.logger.Debug("stream opened", zap.String("session", sessionID))

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("stream closed by client", zap.String("session", sessionID))
			return nil
		case snapshot, ok := <-updates:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, "end", SnapshotEvent{SessionID: sessionID})
				return nil
			}
			if err := h.send(w, flusher, sessionID, snapshot); err != nil {
				return err
			}
		}
	}
}

// RegisterRoutes 注册流式推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	err := h.HandleStreamRequest(r.Context(), w, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, chatService.ErrSessionNotFound.Error())
	case errors.Is(err, errStreamingUnsupported):
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
	default:
		h.logger.Warn("stream failed", zap.String("session", sessionID), zap.Error(err))
	}
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, sessionID string, snapshot []chat.Entry) error {
	return utils.SendSSEEvent(w, flusher, "snapshot", SnapshotEvent{SessionID: sessionID, Entries: snapshot})
}
