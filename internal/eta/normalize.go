package eta

import "sort"

// Normalize validates candidate records from an adapter, dropping malformed
// sub-records while keeping the valid subset. A record is dropped when a
// required identity field is missing, when it has no arrival time, or when
// its arrival predates the data-source timestamp. The drop count is returned
// so callers can log data-quality issues; an all-dropped batch is an empty
// result, not an error.
//
// The valid subset is sorted by (Seq, ETA), which makes Normalize idempotent.
func Normalize(records []Record) ([]Record, int) {
	valid := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Provider == "" || r.Route == "" || r.Stop == "" {
			continue
		}
		if r.ETA.IsZero() {
			continue
		}
		if r.ETA.Before(r.DataTimestamp) {
			continue
		}
		valid = append(valid, r)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Seq != valid[j].Seq {
			return valid[i].Seq < valid[j].Seq
		}
		return valid[i].ETA.Before(valid[j].ETA)
	})

	return valid, len(records) - len(valid)
}
