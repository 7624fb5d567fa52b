package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"tunnel-keeper/internal/models"
	"tunnel-keeper/services"

	"github.com/gin-gonic/gin"
)

// TunnelController handles tunnel-related HTTP requests
type TunnelController struct {
	tunnels *services.TunnelService
}

func NewTunnelController(tunnels *services.TunnelService) *TunnelController {
	return &TunnelController{tunnels: tunnels}
}

// errorStatus 把服务层错误映射为 HTTP 状态码
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidSandboxID), errors.Is(err, services.ErrInvalidPort):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrPortOccupied), errors.Is(err, services.ErrNotClosed),
		errors.Is(err, services.ErrNotOpened):
		return http.StatusConflict
	case errors.Is(err, services.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotAuthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// errorCode 取错误链中最内层的哨兵错误作为错误码
func errorCode(err error) string {
	for _, sentinel := range []error{services.ErrInvalidSandboxID, services.ErrInvalidPort, services.ErrPortOccupied,
		services.ErrNotClosed, services.ErrNotOpened, services.ErrIndexOutOfRange, services.ErrNotAuthenticated} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal_error"
}

func respondError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), &models.ErrorResponse{Error: err.Error(), Code: errorCode(err)})
}

func parseIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &models.ErrorResponse{Error: "Invalid tunnel index", Code: "invalid_index"})
		return 0, false
	}
	return index, true
}

// ListTunnels lists all tunnels
//
//	@Summary		List tunnels
//	@Description	List tunnels of the logged-in identity in insertion order
//	@Tags			Tunnels
//	@Produce		json
//	@Success		200	{array}	models.Tunnel
//	@Router			/api/v1/tunnels [get]
func (tc *TunnelController) ListTunnels(c *gin.Context) {
	c.JSON(http.StatusOK, tc.tunnels.List())
}

// CreateTunnel adds a tunnel
//
//	@Summary		Add tunnel
//	@Description	Add a closed tunnel for a sandbox; sandbox id is 4 digits, port is 5 digits starting with 2
//	@Tags			Tunnels
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.CreateTunnelRequest	true	"Sandbox id and local port"
//	@Success		201		{object}	models.TunnelResponse
//	@Failure		400		{object}	models.ErrorResponse	"Invalid sandbox id or port"
//	@Failure		409		{object}	models.ErrorResponse	"Port already occupied"
//	@Router			/api/v1/tunnels [post]
func (tc *TunnelController) CreateTunnel(c *gin.Context) {
	var req models.CreateTunnelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &models.ErrorResponse{Error: "Invalid request parameters", Code: "invalid_request"})
		return
	}
	index, tun, err := tc.tunnels.Add(req.SandboxID, req.Port)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, &models.TunnelResponse{Index: index, Tunnel: tun, Message: "Tunnel added"})
}

// GetTunnel returns one tunnel with its process handles
//
//	@Summary		Tunnel detail
//	@Tags			Tunnels
//	@Produce		json
//	@Param			index	path		int	true	"Tunnel index"
//	@Success		200		{object}	models.TunnelDetail
//	@Failure		404		{object}	models.ErrorResponse
//	@Router			/api/v1/tunnels/{index} [get]
func (tc *TunnelController) GetTunnel(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	detail, err := tc.tunnels.Detail(index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// DeleteTunnel removes a closed tunnel
//
//	@Summary		Delete tunnel
//	@Tags			Tunnels
//	@Produce		json
//	@Param			index	path		int	true	"Tunnel index"
//	@Success		200		{object}	models.TunnelResponse
//	@Failure		409		{object}	models.ErrorResponse	"Tunnel is not closed"
//	@Router			/api/v1/tunnels/{index} [delete]
func (tc *TunnelController) DeleteTunnel(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	tun, err := tc.tunnels.Delete(index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, &models.TunnelResponse{Index: index, Tunnel: tun, Message: "Tunnel deleted"})
}

// OpenTunnel starts opening a closed tunnel
//
//	@Summary		Open tunnel
//	@Description	Moves a closed tunnel to preopen_check; progress is reported through /api/v1/events
//	@Tags			Tunnels
//	@Produce		json
//	@Param			index	path		int	true	"Tunnel index"
//	@Success		202		{object}	models.TunnelResponse
//	@Failure		409		{object}	models.ErrorResponse	"Tunnel is not closed"
//	@Router			/api/v1/tunnels/{index}/open [post]
func (tc *TunnelController) OpenTunnel(c *gin.Context) {
	tc.command(c, tc.tunnels.Open, "Tunnel opening")
}

// CloseTunnel closes an opened tunnel
//
//	@Summary		Close tunnel
//	@Tags			Tunnels
//	@Produce		json
//	@Param			index	path		int	true	"Tunnel index"
//	@Success		202		{object}	models.TunnelResponse
//	@Failure		409		{object}	models.ErrorResponse	"Tunnel is not opened"
//	@Router			/api/v1/tunnels/{index}/close [post]
func (tc *TunnelController) CloseTunnel(c *gin.Context) {
	tc.command(c, tc.tunnels.Close, "Tunnel closing")
}

func (tc *TunnelController) command(c *gin.Context, op func(int) error, message string) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	if err := op(index); err != nil {
		respondError(c, err)
		return
	}
	tun, err := tc.tunnels.Detail(index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, &models.TunnelResponse{Index: index, Tunnel: tun.Tunnel, Message: message})
}

// SuggestPort returns the default port for a new tunnel
//
//	@Summary		Suggest port
//	@Tags			Tunnels
//	@Produce		json
//	@Success		200	{object}	models.PortSuggestion
//	@Router			/api/v1/tunnels/suggest-port [get]
func (tc *TunnelController) SuggestPort(c *gin.Context) {
	c.JSON(http.StatusOK, &models.PortSuggestion{Port: tc.tunnels.SuggestPort()})
}

// EligibleTunnels lists indexes a command may be applied to
//
//	@Summary		Eligible tunnels
//	@Tags			Tunnels
//	@Produce		json
//	@Param			action	query	string	false	"open, close or delete"
//	@Success		200		{array}	int
//	@Router			/api/v1/tunnels/eligible [get]
func (tc *TunnelController) EligibleTunnels(c *gin.Context) {
	indexes := tc.tunnels.Eligible(c.Query("action"))
	if indexes == nil {
		indexes = []int{}
	}
	c.JSON(http.StatusOK, indexes)
}

/**
 * Register tunnel routes
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - Nothing is registered on unsupported platforms
 */
func (tc *TunnelController) RegisterRoutes(r *gin.Engine) {
	if !tc.tunnels.Supported() {
		return
	}
	tunnelAPI := r.Group("/api/v1")
	{
		tunnels := tunnelAPI.Group("/tunnels")
		{
			tunnels.GET("", tc.ListTunnels)
			tunnels.POST("", tc.CreateTunnel)
			tunnels.GET("/suggest-port", tc.SuggestPort)
			tunnels.GET("/eligible", tc.EligibleTunnels)
			tunnels.GET("/:index", tc.GetTunnel)
			tunnels.DELETE("/:index", tc.DeleteTunnel)
			tunnels.POST("/:index/open", tc.OpenTunnel)
			tunnels.POST("/:index/close", tc.CloseTunnel)
		}
	}
}
