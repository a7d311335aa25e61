package serial

import (
	"io"
	"time"

	"github.com/tarm/serial"
	"github.com/wfunc/serial-scope/internal/errors"
)

// Port 串口接口（用于测试替换真实串口）
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Options 串口打开参数
type Options struct {
	Port        string        // 设备名，如 COM4 或 /dev/ttyUSB0
	BaudRate    int           // 波特率
	DataBits    int           // 数据位
	StopBits    int           // 停止位
	Parity      string        // 校验位 N/O/E
	ReadTimeout time.Duration // 读超时，决定单次轮询的最长阻塞时间
}

// DefaultOptions 返回默认串口参数（Arduino常见配置 9600 8N1）
func DefaultOptions(port string) *Options {
	return &Options{
		Port:        port,
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Open 打开串口
// 失败时返回 ErrSerialPortOpen（端口不存在、被占用或权限不足），调用方视为致命错误
func Open(opts *Options) (Port, error) {
	// 解析校验位
	parity := serial.ParityNone
	switch opts.Parity {
	case "O", "odd":
		parity = serial.ParityOdd
	case "E", "even":
		parity = serial.ParityEven
	}

	// 配置串口
	config := &serial.Config{
		Name:        opts.Port,
		Baud:        opts.BaudRate,
		Size:        byte(opts.DataBits),
		Parity:      parity,
		StopBits:    serial.StopBits(opts.StopBits),
		ReadTimeout: opts.ReadTimeout,
	}

	port, err := serial.OpenPort(config)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSerialPortOpen,
			"串口 %s 打开失败", opts.Port)
	}

	return port, nil
}
