package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/MiniChat/internal/middlewares"
	"github.com/Gopher0727/MiniChat/internal/services"
	logger "github.com/Gopher0727/MiniChat/middleware/log"
)

// APIHandler /api/v1 下的结构化接口
type APIHandler struct {
	auth     *services.AuthService
	chat     *services.ChatService
	presence *services.PresenceService
	log      *logger.Logger
}

func NewAPIHandler(auth *services.AuthService, chat *services.ChatService, presence *services.PresenceService, log *logger.Logger) *APIHandler {
	return &APIHandler{
		auth:     auth,
		chat:     chat,
		presence: presence,
		log:      log,
	}
}

// Snapshot GET /api/v1/snapshot，用户和消息以对象数组返回
func (h *APIHandler) Snapshot(c *gin.Context) {
	ctx := c.Request.Context()
	if session := middlewares.SessionFrom(c); session != nil {
		if err := h.presence.Heartbeat(ctx, session.ProfileID); err != nil {
			h.log.WarnContext(ctx, "heartbeat failed", zap.Error(err))
		}
	}

	snap, err := h.chat.Snapshot(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "snapshot failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot unavailable"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Heartbeat POST /api/v1/heartbeat，需要会话
func (h *APIHandler) Heartbeat(c *gin.Context) {
	session := middlewares.SessionFrom(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, answerResponse{Answer: false})
		return
	}
	if err := h.presence.Heartbeat(c.Request.Context(), session.ProfileID); err != nil {
		h.log.ErrorContext(c.Request.Context(), "heartbeat failed", zap.Error(err))
		c.JSON(http.StatusOK, answerResponse{Answer: false})
		return
	}
	c.JSON(http.StatusOK, answerResponse{Answer: true})
}

// RefreshToken POST /api/v1/token/refresh，新 token 放在 Authorization 响应头
func (h *APIHandler) RefreshToken(c *gin.Context) {
	token := middlewares.BearerToken(c.GetHeader("Authorization"))
	fresh, err := h.auth.RefreshSession(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, answerResponse{Answer: false})
		return
	}
	setToken(c, fresh)
	c.JSON(http.StatusOK, answerResponse{Answer: true})
}
