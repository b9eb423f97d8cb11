package accuracy

import (
	"testing"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

func TestSequenceObserverArrived(t *testing.T) {
	base := time.Date(2025, 5, 12, 8, 0, 0, 0, eta.HKT)
	obs := NewSequenceObserver()

	// poll builds a snapshot taken at base+at whose queue holds departures
	// predicted for base+offset, in order.
	poll := func(at time.Duration, offsets ...time.Duration) Poll {
		p := Poll{At: base.Add(at)}
		for i, offset := range offsets {
			p.Records = append(p.Records, eta.Record{
				Provider: eta.KMB,
				Route:    "1A",
				Stop:     "5",
				Seq:      i + 1,
				ETA:      base.Add(offset),
			})
		}
		return p
	}

	tests := []struct {
		name    string
		prev    Poll
		curr    Poll
		arrived bool
		at      time.Duration
	}{
		{
			name:    "head jump after approach",
			prev:    poll(4*time.Minute, 5*time.Minute, 20*time.Minute),
			curr:    poll(5*time.Minute, 20*time.Minute),
			arrived: true,
			at:      4 * time.Minute,
		},
		{
			name:    "overdue head then jump",
			prev:    poll(7*time.Minute, 5*time.Minute),
			curr:    poll(8*time.Minute, 20*time.Minute),
			arrived: true,
			at:      7 * time.Minute,
		},
		{
			name:    "queue empties while imminent",
			prev:    poll(5*time.Minute, 5*time.Minute),
			curr:    poll(6 * time.Minute),
			arrived: true,
			at:      5 * time.Minute,
		},
		{
			name: "still approaching without jump",
			prev: poll(4*time.Minute, 5*time.Minute),
			curr: poll(5*time.Minute, 5*time.Minute),
		},
		{
			name: "drift below jump threshold",
			prev: poll(4*time.Minute, 5*time.Minute),
			curr: poll(5*time.Minute, 6*time.Minute+30*time.Second),
		},
		{
			name: "not yet approaching",
			prev: poll(0, 5*time.Minute),
			curr: poll(time.Minute, 20*time.Minute),
		},
		{
			name: "queue empties before imminent",
			prev: poll(4*time.Minute, 5*time.Minute),
			curr: poll(5 * time.Minute),
		},
		{
			name: "empty previous poll",
			prev: poll(4 * time.Minute),
			curr: poll(5*time.Minute, 20*time.Minute),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := obs.Arrived(tc.prev, tc.curr)
			if ok != tc.arrived {
				t.Fatalf("Arrived() = %v, expected %v", ok, tc.arrived)
			}
			if tc.arrived && !got.Equal(base.Add(tc.at)) {
				t.Errorf("arrival time = %v, expected %v", got, base.Add(tc.at))
			}
		})
	}
}
