// Package library mutates the external serving index that the content
// server consults. The default implementation shells out to the
// kiwix-manage tool; the engine depends only on the Index contract.
package library

import "context"

// Index is the serving-index mutation contract. Register makes a file
// servable; Unregister removes it. Both are fallible and must never be
// assumed to have succeeded.
type Index interface {
	Register(ctx context.Context, path string) error
	Unregister(ctx context.Context, path string) error
}
