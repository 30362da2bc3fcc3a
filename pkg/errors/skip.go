package errors

import "errors"

// SkipMessageError 表示该消息无需继续处理，也不应被队列重投。
// 消费者看到该错误时直接 Ack，与处理失败（Nack 重投）区分开。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "message skipped: " + e.Reason
}

// Skip 构造一个跳过标记。
func Skip(reason string) error {
	return &SkipMessageError{Reason: reason}
}

// IsSkipMessageError 判断错误链上是否存在跳过标记。
func IsSkipMessageError(err error) bool {
	var skip *SkipMessageError
	return errors.As(err, &skip)
}
