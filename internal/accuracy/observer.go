package accuracy

import (
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// Poll is one snapshot of a stop's predicted departures.
type Poll struct {
	At      time.Time
	Records []eta.Record
}

// Observer decides, from two consecutive polls of the same stop, whether the
// tracked vehicle arrived between them. Upstream feeds carry no explicit
// arrival event, so detection is a strategy that can be swapped out.
type Observer interface {
	// Arrived reports the estimated arrival time of the vehicle at the head
	// of prev's queue, if the polls show it arrived.
	Arrived(prev, curr Poll) (time.Time, bool)
}

// SequenceObserver detects arrivals from head-of-queue movement. Once the
// first predicted departure is at most ApproachWindow away, a forward jump of
// the head prediction larger than JumpThreshold means the queue advanced to
// the next vehicle, so the tracked one must have left. A queue that empties
// while the head was within ImminentWindow counts as an arrival too, covering
// the last departure of the day.
type SequenceObserver struct {
	ApproachWindow time.Duration
	ImminentWindow time.Duration
	JumpThreshold  time.Duration
}

// NewSequenceObserver returns an observer with the default windows.
func NewSequenceObserver() SequenceObserver {
	return SequenceObserver{
		ApproachWindow: 90 * time.Second,
		ImminentWindow: 30 * time.Second,
		JumpThreshold:  2 * time.Minute,
	}
}

func (o SequenceObserver) Arrived(prev, curr Poll) (time.Time, bool) {
	if len(prev.Records) == 0 {
		return time.Time{}, false
	}
	head := prev.Records[0]
	remaining := head.ETA.Sub(prev.At)
	if remaining > o.ApproachWindow {
		return time.Time{}, false
	}

	if len(curr.Records) == 0 {
		// An emptied queue is only trusted when the head was about to
		// arrive, otherwise the operator may just have pulled the entry.
		if remaining <= o.ImminentWindow {
			return prev.At, true
		}
		return time.Time{}, false
	}

	// Compare time-to-arrival rather than raw predictions, so a prediction
	// that merely drifts with the poll clock does not look like a jump.
	next := curr.Records[0].ETA.Sub(curr.At)
	if next-remaining > o.JumpThreshold {
		return prev.At, true
	}
	return time.Time{}, false
}
