package consensus

import "time"

// viewTimer is the driver's single per-height timer: duration grows
// exponentially with the view number, T(v) = base * 2^v capped at max,
// per the view-change protocol's liveness argument. A cancelled timer
// is a no-op; the driver never runs more than one of these at a time.
type viewTimer struct {
	base time.Duration
	max  time.Duration
	t    *time.Timer
}

func newViewTimer(base, max time.Duration) *viewTimer {
	return &viewTimer{base: base, max: max}
}

// durationFor returns T(v), capped at max.
func (vt *viewTimer) durationFor(view uint64) time.Duration {
	d := vt.base
	// Cap the shift itself so overflow can't wrap a huge view number
	// back around to a tiny duration.
	shift := view
	if shift > 32 {
		shift = 32
	}
	for i := uint64(0); i < shift && d < vt.max; i++ {
		d *= 2
	}
	if d > vt.max {
		d = vt.max
	}
	return d
}

// reset stops any pending fire and arms a new one for view, returning
// the channel that will receive the fire time.
func (vt *viewTimer) reset(view uint64) <-chan time.Time {
	vt.stop()
	vt.t = time.NewTimer(vt.durationFor(view))
	return vt.t.C
}

// stop cancels any pending fire. Safe to call when nothing is armed.
func (vt *viewTimer) stop() {
	if vt.t != nil {
		vt.t.Stop()
	}
}
