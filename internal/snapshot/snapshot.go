// Package snapshot implements C8: a normalised, input-tolerant view over
// violations and the pure regression diff between two such views. No I/O;
// everything here is deterministic given its inputs, per spec §4.3.2 and
// §8 (snapshot(findings) idempotence, regression set-equality).
package snapshot

import (
	"sort"

	"fleetctl/internal/model"
)

// Snapshot maps a scan_code to an ordered sequence of file paths that scan
// flagged, preserving discovery order but not deduplicating (duplicates in
// the source remain duplicates here — spec §3).
type Snapshot map[string][]string

// Record is the flat {scan_code, file_path} shape accepted by FromRecords.
type Record struct {
	ScanCode string
	FilePath string
}

// FromRecords groups a flat sequence of scan records by scan_code,
// preserving the input order within each group.
func FromRecords(records []Record) Snapshot {
	snap := make(Snapshot)
	for _, r := range records {
		snap[r.ScanCode] = append(snap[r.ScanCode], r.FilePath)
	}
	return snap
}

// FromGrouped is a passthrough normaliser: an already-grouped mapping is
// copied (not aliased) so callers can mutate their own copy freely and so
// snapshot(snapshot(x)) behaves identically to snapshot(x) for this shape.
func FromGrouped(grouped map[string][]string) Snapshot {
	snap := make(Snapshot, len(grouped))
	for code, paths := range grouped {
		cp := make([]string, len(paths))
		copy(cp, paths)
		snap[code] = cp
	}
	return snap
}

// FromFindings builds a snapshot from a sequence of open findings, keyed by
// their ScanCode (falling back to System when ScanCode is empty) with
// FilePath as the file entry.
func FromFindings(findings []model.Finding) Snapshot {
	snap := make(Snapshot)
	for _, f := range findings {
		if f.Resolution != model.Open {
			continue
		}
		code := f.ScanCode
		if code == "" {
			code = f.System
		}
		snap[code] = append(snap[code], f.FilePath)
	}
	return snap
}

// pair is a (scan_code, file_path) tuple used for set membership.
type pair struct {
	code string
	path string
}

// toCounts flattens a Snapshot into the multiset of (code, path) pairs it
// contains, counting duplicates so repeated entries in the source are not
// collapsed away when checking membership.
func toCounts(s Snapshot) map[pair]int {
	counts := make(map[pair]int)
	for code, paths := range s {
		for _, p := range paths {
			counts[pair{code, p}]++
		}
	}
	return counts
}

// Regression is a single (scan_code, file_path) pair present after a pass
// but absent before it, tagged by whether its scan_code is entirely new.
type Regression struct {
	ScanCode string
	FilePath string
	// Kind is "new" if ScanCode did not appear at all in the before
	// snapshot, else "reappeared".
	Kind string
}

const (
	KindNew        = "new"
	KindReappeared = "reappeared"
)

// Regressions returns every (scan_code, file_path) pair present in after but
// absent from before. Equality is set-based per pair — a pair appearing
// twice in `after` and zero times in `before` yields exactly one Regression,
// matching spec §8's cardinality invariant
// (|regressions| = |{(c,f) : (c,f) in A, (c,f) not in B}|).
//
// Output is sorted by (scan_code, file_path) so the result is deterministic
// for a given input regardless of Go's unordered map iteration.
func Regressions(before, after Snapshot) []Regression {
	beforeCounts := toCounts(before)

	beforeCodes := make(map[string]bool, len(before))
	for code := range before {
		beforeCodes[code] = true
	}

	seen := make(map[pair]bool)
	var out []Regression

	for code, paths := range after {
		for _, path := range paths {
			p := pair{code, path}
			if seen[p] {
				continue
			}
			seen[p] = true
			if beforeCounts[p] > 0 {
				continue
			}
			kind := KindReappeared
			if !beforeCodes[code] {
				kind = KindNew
			}
			out = append(out, Regression{ScanCode: code, FilePath: path, Kind: kind})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScanCode != out[j].ScanCode {
			return out[i].ScanCode < out[j].ScanCode
		}
		return out[i].FilePath < out[j].FilePath
	})
	return out
}

// TotalEntries counts the total number of (possibly duplicate) file
// entries across all scan codes in the snapshot.
func TotalEntries(s Snapshot) int {
	n := 0
	for _, paths := range s {
		n += len(paths)
	}
	return n
}
