package auth

import "context"

type viewContextKey struct{}

// ContextWithView attaches the per-request permission view to the context.
// The view is always passed explicitly through context, never held in
// ambient global state.
func ContextWithView(ctx context.Context, view PermissionView) context.Context {
	return context.WithValue(ctx, viewContextKey{}, &view)
}

// ViewFromContext extracts the permission view attached by the
// authentication middleware.
func ViewFromContext(ctx context.Context) (PermissionView, bool) {
	if ctx == nil {
		return PermissionView{}, false
	}
	v, ok := ctx.Value(viewContextKey{}).(*PermissionView)
	if !ok || v == nil {
		return PermissionView{}, false
	}
	return *v, true
}
