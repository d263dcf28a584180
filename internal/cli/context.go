// Package cli provides the command-line interface for planscrape.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/law-makers/planscrape/internal/app"
)

type ctxKey struct{}

// WithApp returns a context carrying a.
func WithApp(ctx context.Context, a *app.Application) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// AppFrom returns the Application stored in ctx, or nil.
func AppFrom(ctx context.Context) *app.Application {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(ctxKey{}).(*app.Application)
	return a
}

// GetAppFromCmd returns the Application attached to cmd's context.
func GetAppFromCmd(cmd *cobra.Command) *app.Application {
	if cmd == nil {
		return nil
	}
	return AppFrom(cmd.Context())
}
