// Package context carries rollup request attributes used to enrich logs and spans.
package context

import "context"

type requestTypeKey struct{}
type senderKey struct{}
type inputIndexKey struct{}

func WithRequestType(ctx context.Context, requestType string) context.Context {
	if requestType == "" {
		return ctx
	}
	return context.WithValue(ctx, requestTypeKey{}, requestType)
}

func RequestTypeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestTypeKey{}).(string)
	return v
}

// WithSender records the msg_sender of an advance input.
func WithSender(ctx context.Context, sender string) context.Context {
	if sender == "" {
		return ctx
	}
	return context.WithValue(ctx, senderKey{}, sender)
}

func SenderFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(senderKey{}).(string)
	return v
}

func WithInputIndex(ctx context.Context, index uint64) context.Context {
	return context.WithValue(ctx, inputIndexKey{}, index)
}

func InputIndexFromContext(ctx context.Context) (uint64, bool) {
	if ctx == nil {
		return 0, false
	}
	v, ok := ctx.Value(inputIndexKey{}).(uint64)
	return v, ok
}
