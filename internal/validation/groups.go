// Package validation gates instruments by underlying group: a group is built
// only when every member has every raw feed its instrument type requires.
package validation

import (
	"sort"

	"market-candle-lab/internal/domain"
)

// Requirements maps an instrument type to the raw feeds it must have.
// Types without an entry require nothing.
type Requirements map[domain.InstrumentType][]domain.DataType

// BuildGroups groups instruments by underlying (options) or base asset
// (everything else). Groups are ordered by key and members by instrument key.
// An instrument with neither field forms a group of its own.
func BuildGroups(instruments []domain.Instrument) []domain.UnderlyingGroup {
	byKey := make(map[string][]domain.Instrument)
	for _, inst := range instruments {
		key := inst.GroupKey()
		if key == "" {
			key = inst.Key
		}
		byKey[key] = append(byKey[key], inst)
	}

	groups := make([]domain.UnderlyingGroup, 0, len(byKey))
	for key, members := range byKey {
		sort.Slice(members, func(i, j int) bool { return members[i].Key < members[j].Key })
		groups = append(groups, domain.UnderlyingGroup{UnderlyingKey: key, Members: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].UnderlyingKey < groups[j].UnderlyingKey })
	return groups
}

// GroupOutcome is the verdict for one group.
type GroupOutcome struct {
	UnderlyingKey string
	Members       []string
	Valid         bool
	Missing       []domain.AvailabilityPair // expected pairs absent from the report
}

// Result is the gating outcome for a day.
type Result struct {
	Valid   []domain.Instrument // members of complete groups, ordered by key
	Skipped []domain.Instrument // members of incomplete groups, ordered by key
	Groups  []GroupOutcome
}

// ValidKeys returns the keys of the valid instruments.
func (r *Result) ValidKeys() []string {
	return instrumentKeys(r.Valid)
}

// SkippedKeys returns the keys of the skipped instruments.
func (r *Result) SkippedKeys() []string {
	return instrumentKeys(r.Skipped)
}

// SkippedGroups returns the number of groups that failed the gate.
func (r *Result) SkippedGroups() int {
	n := 0
	for _, g := range r.Groups {
		if !g.Valid {
			n++
		}
	}
	return n
}

// Validate checks each group's expected (instrument, data type) pairs against
// the availability report. If any pair is missing, the whole group is skipped,
// including members whose own feeds are complete.
func Validate(groups []domain.UnderlyingGroup, report *domain.AvailabilityReport, req Requirements) *Result {
	res := &Result{Groups: make([]GroupOutcome, 0, len(groups))}
	for _, g := range groups {
		out := GroupOutcome{UnderlyingKey: g.UnderlyingKey, Members: g.MemberKeys()}
		for _, m := range g.Members {
			for _, dt := range req[m.Type] {
				if !report.Has(m.Key, dt) {
					out.Missing = append(out.Missing, domain.AvailabilityPair{InstrumentKey: m.Key, DataType: dt})
				}
			}
		}
		out.Valid = len(out.Missing) == 0
		if out.Valid {
			res.Valid = append(res.Valid, g.Members...)
		} else {
			res.Skipped = append(res.Skipped, g.Members...)
		}
		res.Groups = append(res.Groups, out)
	}

	byKey := func(s []domain.Instrument) func(i, j int) bool {
		return func(i, j int) bool { return s[i].Key < s[j].Key }
	}
	sort.Slice(res.Valid, byKey(res.Valid))
	sort.Slice(res.Skipped, byKey(res.Skipped))
	return res
}

func instrumentKeys(insts []domain.Instrument) []string {
	keys := make([]string, len(insts))
	for i := range insts {
		keys[i] = insts[i].Key
	}
	return keys
}
