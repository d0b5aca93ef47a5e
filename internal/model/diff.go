package model

import "sort"

// RunDiff is the change in regressions between two runs.
// Regressions are matched by page URL.
type RunDiff struct {
	// OldRunID and NewRunID identify the compared runs.
	OldRunID string `json:"old_run_id"`
	NewRunID string `json:"new_run_id"`

	// New are regressions present only in the newer run.
	New []Comparison `json:"new,omitempty"`

	// Resolved are regressions present only in the older run.
	Resolved []Comparison `json:"resolved,omitempty"`

	// Persisting are regressions present in both runs, as seen in the newer one.
	Persisting []Comparison `json:"persisting,omitempty"`
}

// HasChanges reports whether any regression appeared or went away.
func (d *RunDiff) HasChanges() bool {
	return len(d.New) > 0 || len(d.Resolved) > 0
}

// DiffRuns compares the regressions of older and newer.
func DiffRuns(older, newer *RunReport) *RunDiff {
	diff := &RunDiff{OldRunID: older.ID, NewRunID: newer.ID}

	oldByURL := regressionsByURL(older)
	newByURL := regressionsByURL(newer)

	for url, c := range newByURL {
		if _, ok := oldByURL[url]; ok {
			diff.Persisting = append(diff.Persisting, c)
			continue
		}
		diff.New = append(diff.New, c)
	}
	for url, c := range oldByURL {
		if _, ok := newByURL[url]; !ok {
			diff.Resolved = append(diff.Resolved, c)
		}
	}

	sortByURL(diff.New)
	sortByURL(diff.Resolved)
	sortByURL(diff.Persisting)
	return diff
}

// regressionsByURL keeps the last regression seen for each URL.
func regressionsByURL(r *RunReport) map[string]Comparison {
	out := make(map[string]Comparison)
	for _, c := range r.Regressions() {
		out[c.URL] = c
	}
	return out
}

func sortByURL(cs []Comparison) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].URL < cs[j].URL })
}
