package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"restock-monitor/config"
	"restock-monitor/coordinator"
	"restock-monitor/internal/types"
)

// Handler exposes the coordinator's message contract over HTTP. It is a
// thin control surface: all decisions live in the coordinator.
type Handler struct {
	coord  *coordinator.Coordinator
	logger types.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(coord *coordinator.Coordinator, logger types.Logger) *Handler {
	return &Handler{coord: coord, logger: logger}
}

// SetupRouter configures the gin router.
func SetupRouter(cfg *config.Config, h *Handler) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		monitoring := v1.Group("/monitoring")
		{
			monitoring.POST("/start", h.StartMonitoring)
			monitoring.POST("/stop", h.StopMonitoring)
			monitoring.PUT("/interval", h.UpdateInterval)
		}

		v1.GET("/status", h.Status)
		v1.POST("/checkout/auto", h.SetAutoCheckout)

		products := v1.Group("/products")
		{
			products.GET("", h.ListProducts)
			products.POST("", h.AddProduct)
			products.DELETE("", h.RemoveProduct)
			products.POST("/fetch", h.FetchProducts)
			products.POST("/checkout", h.InitiateCheckout)
		}

		v1.GET("/events", h.Events)
		v1.POST("/messages", h.Dispatch)
	}

	return router
}

func requestLogger(logger types.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "restock-monitor"})
}

// StartMonitoring starts stock monitoring with the posted settings.
func (h *Handler) StartMonitoring(c *gin.Context) {
	var settings types.MonitorSettings
	if err := c.ShouldBindJSON(&settings); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, types.Response{Success: false, Error: "invalid request body"})
		return
	}
	h.respond(c, h.coord.HandleMessage(c.Request.Context(), types.Message{
		Type:     types.MsgStartMonitoring,
		Settings: &settings,
	}))
}

// StopMonitoring stops stock monitoring.
func (h *Handler) StopMonitoring(c *gin.Context) {
	h.respond(c, h.coord.HandleMessage(c.Request.Context(), types.Message{Type: types.MsgStopMonitoring}))
}

// UpdateInterval changes the poll interval.
func (h *Handler) UpdateInterval(c *gin.Context) {
	var body struct {
		Interval int `json:"interval"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, types.Response{Success: false, Error: "invalid request body"})
		return
	}
	h.respond(c, h.coord.HandleMessage(c.Request.Context(), types.Message{
		Type:     types.MsgUpdateRefreshInterval,
		Interval: body.Interval,
	}))
}

// Status returns the in-memory monitoring flags.
func (h *Handler) Status(c *gin.Context) {
	h.respond(c, h.coord.HandleMessage(c.Request.Context(), types.Message{Type: types.MsgCheckMonitoringStatus}))
}

// SetAutoCheckout toggles automatic checkout.
func (h *Handler) SetAutoCheckout(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, types.Response{Success: false, Error: "invalid request body"})
		return
	}
	h.respond(c, h.coord.HandleMessage(c.Request.Context(), types.Message{
		Type:    types.MsgSetAutoCheckout,
		Enabled: body.Enabled,
	}))
}

// ListProducts returns the monitored-product list.
func (h *Handler) ListProducts(c *gin.Context) {
	h.respond(c, h.coord.HandleMessage(c.Request.Context(), types.Message{Type: types.MsgGetMonitoredProducts}))
}

// AddProduct upserts a monitored product.
func (h *Handler) AddProduct(c *gin.Context) {
	var product types.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, types.Response{Success: false, Error: "invalid request body"})
		return
	}
	h.respond(c, h.coord.HandleMessage(c.Request.Context(), types.Message{
		Type:    types.MsgAddProductToMonitor,
		Product: &product,
	}))
}

// RemoveProduct removes a monitored product by its URL (query parameter).
func (h *Handler) RemoveProduct(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, types.Response{Success: false, Error: "missing url parameter"})
		return
	}
	h.respond(c, h.coord.RemoveMonitoredProduct(url))
}

// FetchProducts discovers products from the primary tab's current page.
func (h *Handler) FetchProducts(c *gin.Context) {
	h.respond(c, h.coord.HandleMessage(c.Request.Context(), types.Message{Type: types.MsgFetchProducts}))
}

// InitiateCheckout triggers the checkout sequence for the posted product.
func (h *Handler) InitiateCheckout(c *gin.Context) {
	var product types.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, types.Response{Success: false, Error: "invalid request body"})
		return
	}
	h.respond(c, h.coord.HandleMessage(c.Request.Context(), types.Message{
		Type:    types.MsgInitiateCheckout,
		Product: &product,
	}))
}

// Events returns the buffered event stream, newest last.
func (h *Handler) Events(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": h.coord.Events()})
}

// Dispatch accepts a raw message envelope, for clients speaking the
// message contract directly.
func (h *Handler) Dispatch(c *gin.Context) {
	var msg types.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, types.Response{Success: false, Error: "invalid request body"})
		return
	}
	h.respond(c, h.coord.HandleMessage(c.Request.Context(), msg))
}

func (h *Handler) respond(c *gin.Context, resp types.Response) {
	status := http.StatusOK
	if !resp.Success && resp.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resp)
}
