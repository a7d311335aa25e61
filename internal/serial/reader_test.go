package serial

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/serial-scope/internal/errors"
)

// fakePort 脚本化的串口实现，按预设分片依次返回数据
type fakePort struct {
	chunks [][]byte
	closed bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	if len(f.chunks) == 0 {
		// 无数据时模拟读超时
		return 0, io.EOF
	}
	chunk := f.chunks[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		f.chunks[0] = chunk[n:]
	} else {
		f.chunks = f.chunks[1:]
	}
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) { return len(p), nil }

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func (f *fakePort) Flush() error { return nil }

func newTestReader(chunks ...string) (*Reader, *fakePort) {
	port := &fakePort{}
	for _, c := range chunks {
		port.chunks = append(port.chunks, []byte(c))
	}
	return NewReader(port, DefaultOptions("/dev/ttyTEST")), port
}

// 测试打开不存在的串口返回致命错误
func TestOpenMissingPortFails(t *testing.T) {
	port, err := Open(DefaultOptions("/dev/ttyDOESNOTEXIST"))

	assert.Nil(t, port)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrSerialPortOpen))
}

// 测试基本的数值行解析
func TestPollParsesNumericLines(t *testing.T) {
	reader, _ := newTestReader("1.5\n-2\n+3.25\n")

	samples := reader.Poll()
	require.Len(t, samples, 3)
	assert.Equal(t, Sample(1.5), samples[0])
	assert.Equal(t, Sample(-2), samples[1])
	assert.Equal(t, Sample(3.25), samples[2])

	received, dropped := reader.Stats()
	assert.Equal(t, uint64(3), received)
	assert.Equal(t, uint64(0), dropped)
}

// 测试非数值行被静默丢弃且不影响相邻的有效值
func TestPollDropsGarbageLines(t *testing.T) {
	reader, _ := newTestReader("1\n2\ngarbage\n3\n4\n")

	samples := reader.Poll()
	require.Len(t, samples, 4)
	assert.Equal(t, []Sample{1, 2, 3, 4}, samples)

	received, dropped := reader.Stats()
	assert.Equal(t, uint64(4), received)
	assert.Equal(t, uint64(1), dropped)
}

// 测试CRLF行结束符与空行
func TestPollHandlesCRLFAndBlankLines(t *testing.T) {
	reader, _ := newTestReader("10\r\n\r\n20\r\n")

	samples := reader.Poll()
	require.Len(t, samples, 2)
	assert.Equal(t, []Sample{10, 20}, samples)
}

// 测试跨轮询的不完整行被保留到下一次
func TestPollCarriesPartialLine(t *testing.T) {
	reader, port := newTestReader("12.")

	// 第一轮只有不完整的 "12."，不产生采样
	samples := reader.Poll()
	assert.Empty(t, samples)

	// 第二轮补齐后得到 12.5 和 7
	port.chunks = append(port.chunks, []byte("5\n7\n"))
	samples = reader.Poll()
	require.Len(t, samples, 2)
	assert.Equal(t, []Sample{12.5, 7}, samples)
}

// 测试同一轮询内多个分片（缓冲区读满时继续读取）
func TestPollDrainsMultipleChunks(t *testing.T) {
	reader, _ := newTestReader("1\n2\n", "3\n")

	// fakePort每次Read返回一个分片，分片小于缓冲区时本轮读取结束
	samples := reader.Poll()
	assert.Equal(t, []Sample{1, 2}, samples)

	samples = reader.Poll()
	assert.Equal(t, []Sample{3}, samples)
}

// 测试无数据时返回空序列
func TestPollEmptyPort(t *testing.T) {
	reader, _ := newTestReader()

	samples := reader.Poll()
	assert.Empty(t, samples)
}

// 测试关闭后轮询返回空并释放串口
func TestCloseReleasesPort(t *testing.T) {
	reader, port := newTestReader("1\n")

	require.NoError(t, reader.Close())
	assert.True(t, port.closed)
	assert.True(t, reader.IsClosed())
	assert.Empty(t, reader.Poll())

	// 重复关闭不报错
	assert.NoError(t, reader.Close())
}

// 测试残留缓冲区超限时被清空
func TestCarryOverflowIsDiscarded(t *testing.T) {
	// 构造超过上限且不含换行符的数据流
	big := make([]byte, maxCarrySize+readChunkSize)
	for i := range big {
		big[i] = 'x'
	}
	port := &fakePort{chunks: [][]byte{big}}
	reader := NewReader(port, DefaultOptions("/dev/ttyTEST"))

	samples := reader.Poll()
	assert.Empty(t, samples)

	// 缓冲区已被清空，后续有效数据正常解析
	port.chunks = [][]byte{[]byte("42\n")}
	samples = reader.Poll()
	assert.Equal(t, []Sample{42}, samples)
}
