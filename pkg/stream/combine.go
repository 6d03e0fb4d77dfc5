package stream

import "context"

// Map applies fn to every value from in. The output closes when in closes or
// ctx ends.
func Map[T, R any](ctx context.Context, in <-chan T, fn func(T) R) <-chan R {
	out := make(chan R, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				offer(out, fn(v))
			}
		}
	}()
	return out
}

// Distinct drops values equal to the previously forwarded one.
func Distinct[T any](ctx context.Context, in <-chan T, eq func(a, b T) bool) <-chan T {
	out := make(chan T, 1)
	go func() {
		defer close(out)
		var (
			last T
			seen bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				if seen && eq(last, v) {
					continue
				}
				last, seen = v, true
				offer(out, v)
			}
		}
	}()
	return out
}

// CombineLatest3 emits fn(a, b, c) whenever any input produces a value, using
// the latest value of the other two. Nothing is emitted until all three inputs
// have produced at least once. The output closes when ctx ends or any input
// closes.
func CombineLatest3[A, B, C, R any](
	ctx context.Context,
	a <-chan A,
	b <-chan B,
	c <-chan C,
	fn func(A, B, C) R,
) <-chan R {
	out := make(chan R, 1)
	go func() {
		defer close(out)
		var (
			va   A
			vb   B
			vc   C
			hasA bool
			hasB bool
			hasC bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-a:
				if !ok {
					return
				}
				va, hasA = v, true
			case v, ok := <-b:
				if !ok {
					return
				}
				vb, hasB = v, true
			case v, ok := <-c:
				if !ok {
					return
				}
				vc, hasC = v, true
			}
			if hasA && hasB && hasC {
				offer(out, fn(va, vb, vc))
			}
		}
	}()
	return out
}

// First waits for the first value on in.
func First[T any](ctx context.Context, in <-chan T) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case v, ok := <-in:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	}
}
