package types

import "context"

// FileConsumer receives files that arrived in the ingress directory.
// Implementations report their own failures; the caller keeps going.
type FileConsumer interface {
	OnFileArrived(ctx context.Context, path string)
}

// ConsumerFunc adapts a plain function to FileConsumer.
type ConsumerFunc func(ctx context.Context, path string)

// OnFileArrived calls f.
func (f ConsumerFunc) OnFileArrived(ctx context.Context, path string) {
	f(ctx, path)
}
