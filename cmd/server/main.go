package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wfunc/serial-scope/internal/api"
	"github.com/wfunc/serial-scope/internal/config"
	"github.com/wfunc/serial-scope/internal/errors"
	"github.com/wfunc/serial-scope/internal/logger"
	"github.com/wfunc/serial-scope/internal/plot"
	"github.com/wfunc/serial-scope/internal/serial"
	ws "github.com/wfunc/serial-scope/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务组件
	reader     *serial.Reader
	plotter    *plot.Plotter
	hub        *ws.Hub
	httpServer *http.Server

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		baudRate    = flag.Int("baudrate", 0, "串口波特率（覆盖配置文件）")
		timeout     = flag.Duration("timeout", 0, "串口读超时（覆盖配置文件）")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)

	flag.Usage = printUsage
	flag.Parse()

	// 显示版本信息
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 位置参数指定串口，优先于配置文件
	if flag.NArg() > 0 {
		cfg.Serial.Port = flag.Arg(0)
	}
	if cfg.Serial.Port == "" {
		fmt.Fprintln(os.Stderr, "错误: 未指定串口设备（如 com4 或 /dev/ttyUSB0）")
		flag.Usage()
		os.Exit(2)
	}

	// 命令行覆盖串口参数
	if *baudRate > 0 {
		cfg.Serial.BaudRate = *baudRate
	}
	if *timeout > 0 {
		cfg.Serial.ReadTimeout = *timeout
	}

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 打印启动信息
	printStartInfo(cfg)

	// 创建服务器实例
	server := NewServer(cfg)

	// 启动服务器（串口打开失败是致命错误，不重试）
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	// 等待退出信号
	server.WaitForShutdown()

	// 优雅关闭
	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动串口绘图服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	// 初始化各个组件
	if err := s.initComponents(); err != nil {
		return err
	}

	// 启动各个服务
	if err := s.startServices(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "启动服务失败")
	}

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
		zap.String("serial", s.cfg.Serial.Port),
	)

	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	// 打开串口（失败即致命：端口不存在、被占用或权限不足）
	reader, err := serial.OpenReader(&serial.Options{
		Port:        s.cfg.Serial.Port,
		BaudRate:    s.cfg.Serial.BaudRate,
		DataBits:    s.cfg.Serial.DataBits,
		StopBits:    s.cfg.Serial.StopBits,
		Parity:      s.cfg.Serial.Parity,
		ReadTimeout: s.cfg.Serial.ReadTimeout,
	})
	if err != nil {
		return err
	}
	s.reader = reader

	// 创建WebSocket Hub
	s.hub = ws.NewHub(nil, ws.Metadata{
		Title:        s.cfg.Plot.Title,
		YLabel:       s.cfg.Plot.YLabel,
		Capacity:     s.cfg.Plot.Capacity,
		TickInterval: s.cfg.Plot.TickInterval / time.Millisecond,
		SerialPort:   s.cfg.Serial.Port,
	}, s.logger)

	// 创建绘图驱动器
	plotter, err := plot.New(s.reader, s.hub, s.cfg.Plot.Capacity, s.cfg.Plot.TickInterval)
	if err != nil {
		return err
	}
	s.plotter = plotter
	s.hub.SetController(plotter)

	// 创建HTTP路由
	router := api.NewRouter(s.plotter, s.reader, s.hub, s.cfg, s.logger)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Engine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// startServices 启动服务
func (s *Server) startServices() error {
	s.logger.Info("启动服务...")

	// 启动WebSocket Hub
	go s.hub.Run()

	// 启动采集循环
	if err := s.plotter.Start(); err != nil {
		return err
	}

	// 启动HTTP服务器
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务器异常退出", zap.Error(err))
		}
	}()

	s.logger.Info("所有服务启动完成")
	return nil
}

// reloadConfig 热更新配置（仅图表标题相关项，串口参数需重启生效）
func (s *Server) reloadConfig(newCfg *config.Config) {
	s.cfg.Plot.Title = newCfg.Plot.Title
	s.cfg.Plot.YLabel = newCfg.Plot.YLabel

	// 同步到Hub，在线客户端与后续连接都拿到新标题
	s.hub.SetMetadata(ws.Metadata{
		Title:        s.cfg.Plot.Title,
		YLabel:       s.cfg.Plot.YLabel,
		Capacity:     s.cfg.Plot.Capacity,
		TickInterval: s.cfg.Plot.TickInterval / time.Millisecond,
		SerialPort:   s.cfg.Serial.Port,
	})
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	// 创建信号通道
	sigCh := make(chan os.Signal, 1)

	// 监听系统信号
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)

	// 等待信号
	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	// 发送关闭信号
	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
// 保证串口在任何退出路径上都被释放，避免重启时端口被占用
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	// 创建超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止采集循环
	s.plotter.Stop()

	// 停止HTTP服务器
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务器关闭超时", zap.Error(err))
	}

	// 取消主上下文，触发所有goroutine退出
	s.cancel()

	// 等待所有服务关闭
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	// 等待关闭完成或超时
	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
	}

	// 释放串口
	if err := s.reader.Close(); err != nil {
		s.logger.Error("关闭串口失败", zap.Error(err))
	}

	// 同步日志
	logger.Cleanup()

	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("serial-scope %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
}

// printUsage 打印用法
func printUsage() {
	fmt.Fprintf(os.Stderr, `serial-scope - 串口数据实时绘图工具

用法:
  serial-scope [选项] <串口>

示例:
  serial-scope /dev/ttyUSB0
  serial-scope -baudrate 115200 -timeout 200ms com4

选项:
`)
	flag.PrintDefaults()
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Printf(`
 ____  _____ ____  ___    _    _         ____   ____ ___  ____  _____
/ ___|| ____|  _ \|_ _|  / \  | |       / ___| / ___/ _ \|  _ \| ____|
\___ \|  _| | |_) || |  / _ \ | |       \___ \| |  | | | | |_) |  _|
 ___) | |___|  _ < | | / ___ \| |___     ___) | |__| |_| |  __/| |___
|____/|_____|_| \_\___/_/   \_\_____|   |____/ \____\___/|_|   |_____|

  版本: %s
  串口: %s @ %d
  窗口: 最近 %d 个采样, 每 %v 重绘
  页面: http://%s:%d/

`, Version, cfg.Serial.Port, cfg.Serial.BaudRate,
		cfg.Plot.Capacity, cfg.Plot.TickInterval,
		cfg.Server.Host, cfg.Server.Port)
}
