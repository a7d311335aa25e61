package api

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/serial-scope/internal/config"
	"github.com/wfunc/serial-scope/internal/plot"
	"github.com/wfunc/serial-scope/internal/serial"
	ws "github.com/wfunc/serial-scope/internal/websocket"
	"go.uber.org/zap"
)

//go:embed web
var webFS embed.FS

// Router API路由器
type Router struct {
	engine      *gin.Engine
	plotter     *plot.Plotter
	reader      *serial.Reader
	hub         *ws.Hub
	wsHandler   *WebSocketHandler
	plotHandler *PlotHandler
	log         *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(plotter *plot.Plotter, reader *serial.Reader, hub *ws.Hub, cfg *config.Config, log *zap.Logger) *Router {
	// 生产模式下关闭gin的调试输出
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	// 创建处理器
	wsHandler := NewWebSocketHandler(hub, &cfg.WebSocket, log)
	plotHandler := NewPlotHandler(plotter, reader, hub, log)

	router := &Router{
		engine:      engine,
		plotter:     plotter,
		reader:      reader,
		hub:         hub,
		wsHandler:   wsHandler,
		plotHandler: plotHandler,
		log:         log,
	}

	// 设置路由
	router.setupRoutes(cfg.WebSocket.Path)

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes(wsPath string) {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 图表页面（渲染协作方）
	r.engine.GET("/", r.indexPage)

	// WebSocket数据流
	r.engine.GET(wsPath, r.wsHandler.Serve)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		plotGroup := v1.Group("/plot")
		{
			plotGroup.GET("/snapshot", r.plotHandler.Snapshot)
			plotGroup.GET("/status", r.plotHandler.Status)
			plotGroup.POST("/pause", r.plotHandler.Pause)
			plotGroup.POST("/resume", r.plotHandler.Resume)
			plotGroup.GET("/bounds", r.plotHandler.GetBounds)
			plotGroup.PUT("/bounds", r.plotHandler.SetBounds)
		}
	}
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"serial":  !r.reader.IsClosed(),
		"clients": r.hub.GetOnlineCount(),
	})
}

// indexPage 返回内嵌的图表页面
func (r *Router) indexPage(c *gin.Context) {
	data, err := webFS.ReadFile("web/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "page not found")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

// Engine 返回底层gin引擎（由上层挂到http.Server）
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
