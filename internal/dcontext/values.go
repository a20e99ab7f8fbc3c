package dcontext

import "context"

// stringMapContext proxies Value lookups through a map before falling back
// to its parent. Only string keys are supported.
type stringMapContext struct {
	context.Context
	m map[string]any
}

// WithValues returns a context that resolves the given string-keyed values
// before falling back to ctx, so request variables (bucket, key, node) can
// be picked up by GetStringValue and the logger without plumbing extra
// parameters through every call.
func WithValues(ctx context.Context, m map[string]any) context.Context {
	mo := make(map[string]any, len(m))
	for k, v := range m {
		mo[k] = v
	}

	return stringMapContext{
		Context: ctx,
		m:       mo,
	}
}

func (smc stringMapContext) Value(key any) any {
	if ks, ok := key.(string); ok {
		if v, ok := smc.m[ks]; ok {
			return v
		}
	}

	return smc.Context.Value(key)
}

// GetStringValue returns the string value of ctx.Value(key), or "" if the
// key is absent or not a string.
func GetStringValue(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
