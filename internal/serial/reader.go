package serial

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/wfunc/serial-scope/internal/errors"
	"github.com/wfunc/serial-scope/internal/logger"
	"go.uber.org/zap"
)

// Sample 一个采样点，到达顺序即隐式时间戳
type Sample float64

// 单次Read的缓冲区大小与残留缓冲区上限
const (
	readChunkSize = 4096
	maxCarrySize  = 64 * 1024
)

// Reader 串口采样读取器
// 独占持有串口句柄，按轮询方式读取换行分隔的ASCII数值
type Reader struct {
	mu     sync.Mutex
	port   Port
	opts   *Options
	buf    []byte
	carry  []byte // 上次轮询遗留的不完整行
	closed bool

	// 统计
	received uint64 // 成功解析的采样数
	dropped  uint64 // 丢弃的非数值行数

	log *zap.Logger
}

// NewReader 基于已打开的串口创建读取器
func NewReader(port Port, opts *Options) *Reader {
	return &Reader{
		port: port,
		opts: opts,
		buf:  make([]byte, readChunkSize),
		log:  logger.GetModuleLogger("serial"),
	}
}

// OpenReader 打开串口并创建读取器
func OpenReader(opts *Options) (*Reader, error) {
	port, err := Open(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("串口连接成功",
		zap.String("port", opts.Port),
		zap.Int("baud_rate", opts.BaudRate),
		zap.Duration("read_timeout", opts.ReadTimeout))

	return NewReader(port, opts), nil
}

// Poll 读取当前可用的全部字节并解析为采样序列
// 单次调用最多阻塞到串口读超时；不完整的行保留到下次轮询；
// 无法解析为数值的行被丢弃（只影响该行），不中断轮询
func (r *Reader) Poll() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	// 读空当前可用字节；缓冲区读满说明还有剩余，继续读
	for {
		n, err := r.port.Read(r.buf)
		if n > 0 {
			r.carry = append(r.carry, r.buf[:n]...)
		}
		if err != nil {
			// 读超时在部分平台上表现为EOF，视为本轮无更多数据
			if err != io.EOF {
				r.log.Warn("串口读取失败", zap.Error(err))
			}
			break
		}
		if n < len(r.buf) {
			break
		}
	}

	return r.drainLines()
}

// drainLines 从残留缓冲区中切分完整行并解析
func (r *Reader) drainLines() []Sample {
	var samples []Sample

	for {
		i := bytes.IndexByte(r.carry, '\n')
		if i < 0 {
			break
		}

		line := strings.TrimSpace(string(r.carry[:i]))
		r.carry = r.carry[i+1:]

		if line == "" {
			continue
		}

		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			// 上游固件偶发的脏数据，丢弃该行即可
			r.dropped++
			logger.LogDroppedLine(line)
			continue
		}

		samples = append(samples, Sample(value))
		r.received++
	}

	// 长时间收不到换行符说明流不是行分隔文本，丢弃残留避免无限增长
	if len(r.carry) > maxCarrySize {
		r.log.Warn("残留缓冲区超限，已清空",
			zap.Int("size", len(r.carry)))
		r.carry = nil
	}

	return samples
}

// Close 关闭串口，可重复调用
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.port.Close(); err != nil {
		return errors.Wrap(err, errors.ErrSerialClosed)
	}

	logger.Info("串口已关闭", zap.String("port", r.portName()))
	return nil
}

// IsClosed 检查读取器是否已关闭
func (r *Reader) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Stats 返回采样统计（已接收数、已丢弃行数）
func (r *Reader) Stats() (received, dropped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received, r.dropped
}

// PortName 返回设备名
func (r *Reader) PortName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.portName()
}

func (r *Reader) portName() string {
	if r.opts == nil {
		return ""
	}
	return r.opts.Port
}
