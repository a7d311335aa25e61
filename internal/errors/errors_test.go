package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	// 测试基本错误创建
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	// 测试带详情的错误
	err = New(ErrSerialPortOpen, "端口不存在")
	suite.NotNil(err)
	suite.Equal(ErrSerialPortOpen, err.Code)
	suite.Equal("串口打开失败", err.Message)
	suite.Equal("端口不存在", err.Details)

	// 测试多个详情
	err = New(ErrSerialPortOpen, "打开失败", "端口: /dev/ttyUSB0", "波特率: 9600")
	suite.Equal("打开失败; 端口: /dev/ttyUSB0; 波特率: 9600", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrSampleParse, "行 %q 无法解析为数值", "garbage")
	suite.NotNil(err)
	suite.Equal(ErrSampleParse, err.Code)
	suite.Equal(`行 "garbage" 无法解析为数值`, err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	// 包装标准错误
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrSerialPortRead)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrSerialPortRead, wrappedErr.Code)
	suite.Equal("原始错误", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	// 包装nil错误
	nilErr := Wrap(nil, ErrUnknown)
	suite.Nil(nilErr)

	// 包装已有的AppError
	appErr := New(ErrNotFound, "资源不存在")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "额外信息")
	suite.Equal(ErrNotFound, wrappedAppErr.Code) // 保留原始错误码
	suite.Contains(wrappedAppErr.Details, "额外信息")
}

// 测试格式化错误包装
func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("设备忙")
	wrappedErr := Wrapf(originalErr, ErrSerialPortOpen, "串口 %s 打开失败", "COM4")
	suite.NotNil(wrappedErr)
	suite.Equal(ErrSerialPortOpen, wrappedErr.Code)
	suite.Equal("串口 COM4 打开失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrSerialTimeout)
	suite.True(Is(err, ErrSerialTimeout))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrSerialTimeout))

	// 测试标准错误
	standardErr := errors.New("标准错误")
	suite.False(Is(standardErr, ErrUnknown))
}

// 测试获取错误码
func (suite *ErrorsTestSuite) TestGetCode() {
	// AppError
	appErr := New(ErrInvalidBounds)
	suite.Equal(ErrInvalidBounds, GetCode(appErr))

	// 标准错误
	standardErr := errors.New("标准错误")
	suite.Equal(ErrUnknown, GetCode(standardErr))

	// nil错误
	suite.Equal(ErrorCode(0), GetCode(nil))
}

// 测试错误消息
func (suite *ErrorsTestSuite) TestError() {
	// 只有消息
	err := &AppError{
		Code:    ErrNotFound,
		Message: "资源未找到",
	}
	suite.Equal("[1002] 资源未找到", err.Error())

	// 有详情
	err.Details = "端口: COM4"
	suite.Equal("[1002] 资源未找到: 端口: COM4", err.Error())
}

// 测试Unwrap
func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrUnknown)
	suite.Equal(originalErr, wrappedErr.Unwrap())

	// 没有原因的错误
	err := New(ErrUnknown)
	suite.Nil(err.Unwrap())
}

// 测试WithDetails
func (suite *ErrorsTestSuite) TestWithDetails() {
	err := New(ErrInvalidParam)
	err.WithDetails("参数不能为空")
	suite.Equal("参数不能为空", err.Details)
}

// 测试WithCause
func (suite *ErrorsTestSuite) TestWithCause() {
	err := New(ErrSerialPortRead)
	cause := errors.New("读取中断")
	err.WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("读取中断", err.Details)

	// 已有Details的情况
	err2 := New(ErrSerialPortRead, "轮询失败")
	err2.WithCause(cause)
	suite.Equal(cause, err2.Cause)
	suite.Equal("轮询失败", err2.Details) // 保留原有Details
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrNotFound, 404},
		{ErrPermissionDenied, 403},
		{ErrTimeout, 408},
		{ErrInvalidCapacity, 400},
		{ErrInvalidBounds, 400},
		{ErrSerialPortOpen, 503},
		{ErrSerialTimeout, 503},
		{ErrUnknown, 500},
		{ErrWebSocketSend, 500},
	}

	for _, tc := range testCases {
		err := New(tc.code)
		suite.Equal(tc.expected, err.HTTPStatus(), "错误码 %d 的HTTP状态码不正确", tc.code)
	}
}

// 测试可重试判断
func (suite *ErrorsTestSuite) TestIsRetryable() {
	suite.True(IsRetryable(New(ErrTimeout)))
	suite.True(IsRetryable(New(ErrSerialTimeout)))
	suite.True(IsRetryable(New(ErrWebSocketConnect)))
	suite.False(IsRetryable(New(ErrSerialPortOpen)))
	suite.False(IsRetryable(nil))
}

// 测试严重错误判断
func (suite *ErrorsTestSuite) TestIsCritical() {
	suite.True(IsCritical(New(ErrSerialPortOpen)))
	suite.True(IsCritical(New(ErrConfigLoad)))
	suite.False(IsCritical(New(ErrSampleParse)))
	suite.False(IsCritical(nil))
}

// 测试错误响应
func (suite *ErrorsTestSuite) TestNewErrorResponse() {
	appErr := New(ErrSerialPortOpen, "端口被占用")
	resp := NewErrorResponse(appErr, "req-123")
	suite.False(resp.Success)
	suite.Equal(appErr, resp.Error)
	suite.Equal("req-123", resp.RequestID)
	suite.NotZero(resp.Timestamp)
}

// 运行测试套件
func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
