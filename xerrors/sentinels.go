package xerrors

// 跨组件共享的哨兵错误。组件自有的错误应 Wrap 这些值，
// 使上层无需认识具体组件也能做粗粒度判定。
var (
	ErrNotFound     = New("not found")
	ErrInvalidInput = New("invalid input")
	ErrTimeout      = New("timeout")
	ErrUnavailable  = New("unavailable")
	ErrUnauthorized = New("unauthorized")
	ErrForbidden    = New("forbidden")
	ErrCanceled     = New("canceled")
	ErrClosed       = New("closed")
)
