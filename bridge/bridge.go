// Package bridge lets code on other goroutines call into a running world.
// Every operation is posted to the scheduler's executor and waits for its
// result there, so heap and thread state are only touched by one goroutine.
package bridge

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/timewinder-dev/dreamvm/interp"
	"github.com/timewinder-dev/dreamvm/sched"
	"github.com/timewinder-dev/dreamvm/vm"
)

type result struct {
	v   vm.Value
	err error
}

type Bridge struct {
	s *sched.Scheduler
}

func New(s *sched.Scheduler) *Bridge {
	return &Bridge{s: s}
}

// submit runs fn on the executor. fn must call done exactly once, possibly
// later from a thread completion.
func (b *Bridge) submit(ctx context.Context, fn func(c *interp.Context, done func(vm.Value, error))) (vm.Value, error) {
	ch := make(chan result, 1)
	b.s.Post(func() {
		fn(b.s.Context(), func(v vm.Value, err error) {
			ch <- result{v: v, err: err}
		})
	})
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return vm.Null, ctx.Err()
	}
}

// waitThread finishes done when t ends, or right away if Run already
// produced an answer.
func waitThread(v vm.Value, t *interp.Thread, err error, done func(vm.Value, error)) {
	if !errors.Is(err, interp.ErrUnresolved) {
		done(v, err)
		return
	}
	t.OnDone(func(t *interp.Thread) {
		done(t.Result(), t.Err())
	})
}

// CallByName calls proc name on target and waits for its result. A null
// target calls a global proc. Calls that sleep are waited for across ticks.
func (b *Bridge) CallByName(ctx context.Context, target vm.Value, name string, args interp.Args) (vm.Value, error) {
	return b.submit(ctx, func(c *interp.Context, done func(vm.Value, error)) {
		id, err := c.ResolveProc(target, name)
		if err != nil {
			done(vm.Null, err)
			return
		}
		log.Debug().Str("proc", c.Program.ProcPath(id)).Msg("bridge call")
		v, t, err := interp.Run(c, id, target, vm.Null, args)
		waitThread(v, t, err, done)
	})
}

// ReadField reads a field of an object.
func (b *Bridge) ReadField(ctx context.Context, target vm.Value, name string) (vm.Value, error) {
	return b.submit(ctx, func(c *interp.Context, done func(vm.Value, error)) {
		done(c.ReadField(target, name))
	})
}

// WriteField assigns a field of an object.
func (b *Bridge) WriteField(ctx context.Context, target vm.Value, name string, v vm.Value) error {
	_, err := b.submit(ctx, func(c *interp.Context, done func(vm.Value, error)) {
		done(vm.Null, c.WriteField(target, name, v))
	})
	return err
}

// NewObject creates an object of the type at path and waits for its New
// proc, if any, to finish.
func (b *Bridge) NewObject(ctx context.Context, path string, args interp.Args) (vm.Value, error) {
	return b.submit(ctx, func(c *interp.Context, done func(vm.Value, error)) {
		obj, t, err := interp.NewObject(c, c.StringValue(path), vm.Null, args)
		if err != nil || t == nil {
			done(obj, err)
			return
		}
		t.OnDone(func(t *interp.Thread) {
			done(obj, t.Err())
		})
	})
}

// Text interns s on the executor and returns it as a value.
func (b *Bridge) Text(ctx context.Context, s string) (vm.Value, error) {
	return b.submit(ctx, func(c *interp.Context, done func(vm.Value, error)) {
		done(c.StringValue(s), nil)
	})
}

// Stringify renders v as text on the executor.
func (b *Bridge) Stringify(ctx context.Context, v vm.Value) (string, error) {
	var out string
	_, err := b.submit(ctx, func(c *interp.Context, done func(vm.Value, error)) {
		out = c.Stringify(v)
		done(vm.Null, nil)
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
