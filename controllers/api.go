package controllers

import (
	"io"
	"net/http"

	"tunnel-keeper/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIController struct {
	server *services.Server
}

/**
 * Create new API controller instance
 * @param {*services.Server} server - Server owning the tunnel service
 * @returns {*APIController} New API controller instance
 */
func NewAPIController(server *services.Server) *APIController {
	return &APIController{
		server: server,
	}
}

/**
 * Register platform independent routes
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - Events, health, state, metrics and reload are served on every platform,
 *   so the UI can learn that tunnels are unsupported
 */
func (a *APIController) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", a.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/v1/state", a.State)
	r.GET("/api/v1/events", a.Events)
	r.POST("/api/v1/reload", a.ReloadConfig)
}

// @Summary 重新加载配置
// @Description 重新加载配置文件与登录身份
// @Tags Config
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/reload [post]
func (a *APIController) ReloadConfig(c *gin.Context) {
	if err := a.server.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "config.reload_failed",
			"message": "Failed to reload configuration: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Configuration reloaded successfully",
	})
}

// @Summary 业务就绪探针
// @Description 返回服务版本、启动时间、平台支持情况和隧道统计
// @Tags System
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /healthz [get]
func (a *APIController) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, a.server.GetHealthz())
}

// @Summary 服务状态
// @Tags System
// @Produce json
// @Success 200 {object} models.ServerState
// @Router /api/v1/state [get]
func (a *APIController) State(c *gin.Context) {
	c.JSON(http.StatusOK, a.server.GetState())
}

// @Summary 事件流
// @Description 以 Server-Sent Events 推送隧道快照、列表刷新、消息和平台不支持通知
// @Tags System
// @Produce text/event-stream
// @Router /api/v1/events [get]
func (a *APIController) Events(c *gin.Context) {
	hub := a.server.Tunnels().Hub()
	events, cancel := hub.Subscribe()
	defer cancel()

	// 新订阅者先收到完整列表，不支持的平台收到一次 unsupported
	if hub.IsUnsupported() {
		c.SSEvent("unsupported", gin.H{})
	} else {
		c.SSEvent("setContent", a.server.Tunnels().List())
	}
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		}
	})
}
