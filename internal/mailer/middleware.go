package mailer

import (
	"context"
	"errors"
	"fmt"
)

// Next continues the middleware chain.
type Next func(ctx context.Context) error

// Middleware inspects or mutates the envelope before delivery. It must call
// next to let the send proceed; returning without calling it drops the
// message, returning an error aborts the send.
type Middleware func(ctx context.Context, env *Envelope, next Next) error

// chain runs middleware strictly in registration order.
type chain struct {
	fns []Middleware
}

func (c *chain) use(fn Middleware) {
	if fn == nil {
		return
	}
	c.fns = append(c.fns, fn)
}

// run reports whether the end of the chain was reached.
func (c *chain) run(ctx context.Context, env *Envelope) (bool, error) {
	fns := c.fns
	reached := false

	var step func(i int) Next
	step = func(i int) Next {
		return func(ctx context.Context) error {
			if i == len(fns) {
				reached = true
				return nil
			}
			if err := fns[i](ctx, env, step(i+1)); err != nil {
				var inner *middlewareError
				if errors.As(err, &inner) {
					return err
				}
				return &middlewareError{index: i, err: err}
			}
			return nil
		}
	}

	if err := step(0)(ctx); err != nil {
		return false, err
	}
	return reached, nil
}

type middlewareError struct {
	index int
	err   error
}

func (e *middlewareError) Error() string {
	return fmt.Sprintf("%s: middleware #%d: %v", ErrMiddleware, e.index, e.err)
}

func (e *middlewareError) Unwrap() []error { return []error{ErrMiddleware, e.err} }
