package plot

import (
	"math"
	"sync"
	"time"

	"github.com/wfunc/serial-scope/internal/errors"
	"github.com/wfunc/serial-scope/internal/logger"
	"github.com/wfunc/serial-scope/internal/serial"
	"go.uber.org/zap"
)

// Poller 采样来源（串口读取器）
type Poller interface {
	Poll() []serial.Sample
}

// Broadcaster 渲染协作方，每个周期接收一帧窗口快照
// 所有绘制、坐标缩放与窗口管理由协作方负责
type Broadcaster interface {
	BroadcastFrame(frame *Frame)
}

// AxisBound 单个坐标边界，自动或手动取值
type AxisBound struct {
	Auto  bool    `json:"auto"`
	Value float64 `json:"value"`
}

// Bounds 坐标范围设置
type Bounds struct {
	XMin AxisBound `json:"x_min"`
	XMax AxisBound `json:"x_max"`
	YMin AxisBound `json:"y_min"`
	YMax AxisBound `json:"y_max"`
}

// DefaultBounds 全自动的坐标范围
func DefaultBounds() Bounds {
	return Bounds{
		XMin: AxisBound{Auto: true},
		XMax: AxisBound{Auto: true},
		YMin: AxisBound{Auto: true},
		YMax: AxisBound{Auto: true},
	}
}

// Validate 校验手动范围的有效性
func (b Bounds) Validate() error {
	if !b.XMin.Auto && !b.XMax.Auto && b.XMin.Value >= b.XMax.Value {
		return errors.Newf(errors.ErrInvalidBounds, "x_min(%v) >= x_max(%v)", b.XMin.Value, b.XMax.Value)
	}
	if !b.YMin.Auto && !b.YMax.Auto && b.YMin.Value >= b.YMax.Value {
		return errors.Newf(errors.ErrInvalidBounds, "y_min(%v) >= y_max(%v)", b.YMin.Value, b.YMax.Value)
	}
	return nil
}

// Frame 一帧窗口快照，广播给渲染协作方
type Frame struct {
	Start     uint64    `json:"start"`  // 第一个值的绝对序号
	Values    []float64 `json:"values"` // 按到达顺序排列的窗口内容
	Total     uint64    `json:"total"`  // 历史累计接收数
	Paused    bool      `json:"paused"`
	Bounds    Bounds    `json:"bounds"` // 当前范围设置
	XMin      float64   `json:"xmin"`   // 解析后的实际坐标范围
	XMax      float64   `json:"xmax"`
	YMin      float64   `json:"ymin"`
	YMax      float64   `json:"ymax"`
	Timestamp int64     `json:"timestamp"`
}

// Plotter 定时采集与重绘驱动器
// 每个周期执行一次tick: 轮询串口 -> 追加窗口 -> 广播快照
type Plotter struct {
	mu          sync.RWMutex
	window      *Window
	poller      Poller
	broadcaster Broadcaster
	interval    time.Duration
	bounds      Bounds
	paused      bool
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	log         *zap.Logger
}

// New 创建绘图驱动器
func New(poller Poller, broadcaster Broadcaster, capacity int, interval time.Duration) (*Plotter, error) {
	window, err := NewWindow(capacity)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	return &Plotter{
		window:      window,
		poller:      poller,
		broadcaster: broadcaster,
		interval:    interval,
		bounds:      DefaultBounds(),
		log:         logger.GetModuleLogger("plot"),
	}, nil
}

// Start 启动采集循环
func (p *Plotter) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New(errors.ErrPlotterRunning)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	p.log.Info("采集循环启动",
		zap.Duration("interval", p.interval),
		zap.Int("capacity", p.window.Cap()))

	go p.run()
	return nil
}

// run 单线程采集循环，所有窗口变更都发生在这里
func (p *Plotter) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Stop 停止采集循环并等待退出，可重复调用
func (p *Plotter) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	<-p.doneCh
	p.log.Info("采集循环已停止")
}

// Tick 执行一个采集周期
// 暂停时仍然读空串口（避免缓冲区积压），但不追加采样
func (p *Plotter) Tick() {
	samples := p.poller.Poll()

	p.mu.Lock()
	if !p.paused {
		for _, s := range samples {
			p.window.Push(float64(s))
		}
	}
	frame := p.snapshotLocked()
	p.mu.Unlock()

	logger.LogTick(len(samples), len(frame.Values), frame.Total)

	if p.broadcaster != nil {
		p.broadcaster.BroadcastFrame(frame)
	}
}

// Snapshot 返回当前窗口快照
func (p *Plotter) Snapshot() *Frame {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

// snapshotLocked 构建快照，调用方须持有锁
func (p *Plotter) snapshotLocked() *Frame {
	frame := &Frame{
		Start:     p.window.Start(),
		Values:    p.window.Values(),
		Total:     p.window.Total(),
		Paused:    p.paused,
		Bounds:    p.bounds,
		Timestamp: time.Now().UnixMilli(),
	}
	p.resolveBounds(frame)
	return frame
}

// resolveBounds 计算本帧的实际坐标范围
// X轴自动模式跟随数据，始终显示最近capacity个序号；
// Y轴自动模式取数据范围并各留1个单位的边距，空窗口固定为 [0, 1]
func (p *Plotter) resolveBounds(frame *Frame) {
	capacity := float64(p.window.Cap())

	if p.bounds.XMax.Auto {
		frame.XMax = math.Max(float64(p.window.Total()), capacity)
	} else {
		frame.XMax = p.bounds.XMax.Value
	}
	if p.bounds.XMin.Auto {
		frame.XMin = frame.XMax - capacity
	} else {
		frame.XMin = p.bounds.XMin.Value
	}

	if p.bounds.YMin.Auto {
		if v, ok := p.window.Min(); ok {
			frame.YMin = math.Round(v) - 1
		} else {
			frame.YMin = 0
		}
	} else {
		frame.YMin = p.bounds.YMin.Value
	}
	if p.bounds.YMax.Auto {
		if v, ok := p.window.Max(); ok {
			frame.YMax = math.Round(v) + 1
		} else {
			frame.YMax = 1
		}
	} else {
		frame.YMax = p.bounds.YMax.Value
	}
}

// Pause 暂停追加采样（串口仍被读空）
func (p *Plotter) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume 恢复追加采样
func (p *Plotter) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

// IsPaused 是否处于暂停状态
func (p *Plotter) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// SetBounds 更新坐标范围设置
func (p *Plotter) SetBounds(bounds Bounds) error {
	if err := bounds.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.bounds = bounds
	return nil
}

// GetBounds 返回当前坐标范围设置
func (p *Plotter) GetBounds() Bounds {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bounds
}

// IsRunning 采集循环是否在运行
func (p *Plotter) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Capacity 窗口容量
func (p *Plotter) Capacity() int {
	return p.window.Cap()
}
