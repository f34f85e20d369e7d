package logger

import (
	"context"

	"github.com/google/uuid"
)

type traceIDKey struct{}

// maxTraceIDLen 外部传入的 trace id 超长或含控制字符时重新生成，避免日志注入
const maxTraceIDLen = 128

// WithTraceID 把 trace id 放入 ctx；为空或不合法时生成新的 UUID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if !validTraceID(traceID) {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey{}).(string)
	return traceID
}

func NewTraceID() string {
	return uuid.NewString()
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
