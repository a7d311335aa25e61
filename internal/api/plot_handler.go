package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/serial-scope/internal/errors"
	"github.com/wfunc/serial-scope/internal/plot"
	"github.com/wfunc/serial-scope/internal/serial"
	ws "github.com/wfunc/serial-scope/internal/websocket"
	"go.uber.org/zap"
)

// PlotHandler 绘图API处理器
type PlotHandler struct {
	plotter *plot.Plotter
	reader  *serial.Reader
	hub     *ws.Hub
	logger  *zap.Logger
}

// NewPlotHandler 创建绘图处理器
func NewPlotHandler(plotter *plot.Plotter, reader *serial.Reader, hub *ws.Hub, logger *zap.Logger) *PlotHandler {
	return &PlotHandler{
		plotter: plotter,
		reader:  reader,
		hub:     hub,
		logger:  logger,
	}
}

// Snapshot 返回当前窗口快照
// format=csv 时以CSV附件形式下载（对应原工具的"保存图像"功能）
func (h *PlotHandler) Snapshot(c *gin.Context) {
	frame := h.plotter.Snapshot()

	if c.Query("format") == "csv" {
		h.snapshotCSV(c, frame)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    frame,
	})
}

// snapshotCSV 以CSV形式导出窗口内容
func (h *PlotHandler) snapshotCSV(c *gin.Context, frame *plot.Frame) {
	var sb strings.Builder
	sb.WriteString("index,value\n")
	for i, v := range frame.Values {
		sb.WriteString(strconv.FormatUint(frame.Start+uint64(i), 10))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		sb.WriteByte('\n')
	}

	filename := fmt.Sprintf("snapshot-%d.csv", time.Now().Unix())
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(sb.String()))
}

// Status 返回采集状态
func (h *PlotHandler) Status(c *gin.Context) {
	received, dropped := h.reader.Stats()
	frame := h.plotter.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"serial": gin.H{
				"port":      h.reader.PortName(),
				"connected": !h.reader.IsClosed(),
				"received":  received,
				"dropped":   dropped,
			},
			"window": gin.H{
				"length":   len(frame.Values),
				"capacity": h.plotter.Capacity(),
				"total":    frame.Total,
			},
			"paused":  h.plotter.IsPaused(),
			"running": h.plotter.IsRunning(),
			"clients": h.hub.GetOnlineCount(),
		},
	})
}

// Pause 暂停采样追加
func (h *PlotHandler) Pause(c *gin.Context) {
	h.plotter.Pause()
	h.logger.Info("绘图已暂停", zap.String("ip", c.ClientIP()))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"paused":  true,
	})
}

// Resume 恢复采样追加
func (h *PlotHandler) Resume(c *gin.Context) {
	h.plotter.Resume()
	h.logger.Info("绘图已恢复", zap.String("ip", c.ClientIP()))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"paused":  false,
	})
}

// GetBounds 返回当前坐标范围设置
func (h *PlotHandler) GetBounds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.plotter.GetBounds(),
	})
}

// SetBounds 更新坐标范围设置
func (h *PlotHandler) SetBounds(c *gin.Context) {
	var bounds plot.Bounds
	if err := c.ShouldBindJSON(&bounds); err != nil {
		h.respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}

	if err := h.plotter.SetBounds(bounds); err != nil {
		h.respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidBounds))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.plotter.GetBounds(),
	})
}

// respondError 统一错误响应
func (h *PlotHandler) respondError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.HTTPStatus(), apperrors.NewErrorResponse(err, c.GetHeader("X-Request-ID")))
}
