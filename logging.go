package streams

import "github.com/joeycumines/logiface"

// Logger is the structured-logging hook accepted by every stream and
// controller constructor. It is an alias of a pointer to [logiface.Logger]
// instantiated with logiface's own generic [logiface.Event] type
// (github.com/joeycumines/logiface, backed in tests by
// github.com/joeycumines/stumpy as the JSON writer).
//
// A nil Logger is a valid no-op, so every call site can invoke logDebug and
// logError unconditionally.
type Logger = *logiface.Logger[logiface.Event]

// logDebug emits a Debug-level structured event if l is non-nil, recording
// which stream-core category (queue, controller, pipe, tee, ...) and
// lifecycle transition produced it. It is a no-op with l == nil so every
// call site can unconditionally invoke it.
func logDebug(l Logger, category, message string, fields map[string]any) {
	if l == nil {
		return
	}
	b := l.Debug()
	if b == nil {
		return
	}
	b = b.Str(`category`, category)
	for k, v := range fields {
		b = logField(b, k, v)
	}
	b.Log(message)
}

// logError emits an Error-level structured event if l is non-nil.
func logError(l Logger, category, message string, err error) {
	if l == nil {
		return
	}
	b := l.Err()
	if b == nil {
		return
	}
	b = b.Str(`category`, category)
	if err != nil {
		b = b.Err(err)
	}
	b.Log(message)
}

func logField(b *logiface.Builder[logiface.Event], key string, value any) *logiface.Builder[logiface.Event] {
	switch v := value.(type) {
	case string:
		return b.Str(key, v)
	case bool:
		return b.Bool(key, v)
	case int:
		return b.Int(key, v)
	case int64:
		return b.Int64(key, v)
	case float64:
		return b.Float64(key, v)
	default:
		return b.Any(key, v)
	}
}
