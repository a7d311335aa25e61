package plot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/serial-scope/internal/errors"
)

// 测试非法容量
func TestNewWindowInvalidCapacity(t *testing.T) {
	_, err := NewWindow(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidCapacity))

	_, err = NewWindow(-1)
	require.Error(t, err)
}

// 测试未满时按到达顺序保留全部采样
func TestWindowKeepsAllWhenNotFull(t *testing.T) {
	w, err := NewWindow(5)
	require.NoError(t, err)

	w.Push(1)
	w.Push(2)
	w.Push(3)

	assert.Equal(t, []float64{1, 2, 3}, w.Values())
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 5, w.Cap())
	assert.Equal(t, uint64(0), w.Start())
	assert.Equal(t, uint64(3), w.Total())
}

// 测试满时淘汰最旧采样（滑动窗口性质）
func TestWindowEvictsOldestWhenFull(t *testing.T) {
	w, err := NewWindow(3)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		w.Push(float64(i))
	}

	assert.Equal(t, []float64{3, 4, 5}, w.Values())
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, uint64(2), w.Start())
	assert.Equal(t, uint64(5), w.Total())
}

// 测试长序列下长度不变量始终成立
func TestWindowLengthInvariant(t *testing.T) {
	w, err := NewWindow(7)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		w.Push(float64(i))
		assert.LessOrEqual(t, w.Len(), w.Cap())
	}

	// 最终保留最近7个值
	assert.Equal(t, []float64{93, 94, 95, 96, 97, 98, 99}, w.Values())
}

// 测试最小值与最大值
func TestWindowMinMax(t *testing.T) {
	w, err := NewWindow(4)
	require.NoError(t, err)

	// 空窗口
	_, ok := w.Min()
	assert.False(t, ok)
	_, ok = w.Max()
	assert.False(t, ok)

	w.Push(3)
	w.Push(-1)
	w.Push(7)

	minV, ok := w.Min()
	require.True(t, ok)
	assert.Equal(t, -1.0, minV)

	maxV, ok := w.Max()
	require.True(t, ok)
	assert.Equal(t, 7.0, maxV)

	// 淘汰后重新计算
	w.Push(2)
	w.Push(5) // 淘汰3
	w.Push(4) // 淘汰-1

	minV, _ = w.Min()
	assert.Equal(t, 2.0, minV)
	maxV, _ = w.Max()
	assert.Equal(t, 7.0, maxV)
}

// 测试Reset清空窗口但保留累计计数
func TestWindowReset(t *testing.T) {
	w, err := NewWindow(3)
	require.NoError(t, err)

	w.Push(1)
	w.Push(2)
	w.Reset()

	assert.Equal(t, 0, w.Len())
	assert.Empty(t, w.Values())
	assert.Equal(t, uint64(2), w.Total())
}
