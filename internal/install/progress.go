package install

import "context"

// progressReporter turns byte counts into a gap-free percent sequence.
// Every value from 0 to 100 is emitted exactly once and in order; 100 is only
// emitted by finish, after the transfer has completed.
type progressReporter struct {
	ctx  context.Context
	emit func(percent int) error
	last int
}

func newProgressReporter(ctx context.Context, emit func(percent int) error) *progressReporter {
	return &progressReporter{ctx: ctx, emit: emit, last: -1}
}

// advance emits every percent after the last one up to and including to.
func (r *progressReporter) advance(to int) error {
	if to > 100 {
		to = 100
	}

	for r.last < to {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		next := r.last + 1
		if err := r.emit(next); err != nil {
			return err
		}
		r.last = next
	}

	return nil
}

// update is a ProgressFunc. Unknown totals leave the sequence where it is.
func (r *progressReporter) update(done, total int64) error {
	if total <= 0 {
		return nil
	}

	pct := int(done * 100 / total)
	if pct > 99 {
		pct = 99
	}

	return r.advance(pct)
}

func (r *progressReporter) start() error  { return r.advance(0) }
func (r *progressReporter) finish() error { return r.advance(100) }
