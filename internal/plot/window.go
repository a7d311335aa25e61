package plot

import (
	"github.com/wfunc/serial-scope/internal/errors"
)

// Window 固定容量的滑动窗口
// 仅保留最近到达的capacity个采样，满时淘汰最旧的一个（FIFO）
type Window struct {
	values []float64
	head   int    // 最旧元素的位置
	size   int    // 当前元素数，不变量: size <= capacity
	total  uint64 // 历史累计接收数，用作X轴的绝对序号基准
}

// NewWindow 创建滑动窗口
func NewWindow(capacity int) (*Window, error) {
	if capacity <= 0 {
		return nil, errors.Newf(errors.ErrInvalidCapacity, "capacity=%d", capacity)
	}
	return &Window{
		values: make([]float64, capacity),
	}, nil
}

// Push 追加一个采样，窗口满时淘汰最旧的采样
func (w *Window) Push(value float64) {
	if w.size < len(w.values) {
		w.values[(w.head+w.size)%len(w.values)] = value
		w.size++
	} else {
		w.values[w.head] = value
		w.head = (w.head + 1) % len(w.values)
	}
	w.total++
}

// Values 按到达顺序返回当前窗口内容的副本
func (w *Window) Values() []float64 {
	out := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.values[(w.head+i)%len(w.values)]
	}
	return out
}

// Len 当前采样数
func (w *Window) Len() int {
	return w.size
}

// Cap 窗口容量
func (w *Window) Cap() int {
	return len(w.values)
}

// Total 历史累计接收数（含已淘汰的采样）
func (w *Window) Total() uint64 {
	return w.total
}

// Start 窗口内第一个采样的绝对序号
func (w *Window) Start() uint64 {
	return w.total - uint64(w.size)
}

// Min 窗口内最小值，窗口为空时ok为false
func (w *Window) Min() (v float64, ok bool) {
	if w.size == 0 {
		return 0, false
	}
	v = w.values[w.head]
	for i := 1; i < w.size; i++ {
		if x := w.values[(w.head+i)%len(w.values)]; x < v {
			v = x
		}
	}
	return v, true
}

// Max 窗口内最大值，窗口为空时ok为false
func (w *Window) Max() (v float64, ok bool) {
	if w.size == 0 {
		return 0, false
	}
	v = w.values[w.head]
	for i := 1; i < w.size; i++ {
		if x := w.values[(w.head+i)%len(w.values)]; x > v {
			v = x
		}
	}
	return v, true
}

// Reset 清空窗口（保留容量与累计计数）
func (w *Window) Reset() {
	w.head = 0
	w.size = 0
}
