package columnar

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go/format"
)

// RowGroupStats is the timestamp range of one row group.
type RowGroupStats struct {
	Offset  int64 // index of the group's first row in the file
	NumRows int64
	MinUs   int64
	MaxUs   int64
}

// Window is a half-open time range [StartUs, EndUs).
type Window struct {
	StartUs int64
	EndUs   int64
}

// Intersects reports whether the group may hold a row inside w.
func (g RowGroupStats) Intersects(w Window) bool {
	return g.MinUs < w.EndUs && g.MaxUs >= w.StartUs
}

// ExtractStats reads per-row-group min/max of column from file metadata.
// ok is false when any group lacks usable statistics, in which case readers
// must fall back to a full scan.
func ExtractStats(md *format.FileMetaData, column string) (groups []RowGroupStats, ok bool) {
	if md == nil {
		return nil, false
	}

	var offset, total int64
	groups = make([]RowGroupStats, 0, len(md.RowGroups))
	for _, rg := range md.RowGroups {
		st := RowGroupStats{Offset: offset, NumRows: rg.NumRows}
		offset += rg.NumRows
		total += rg.NumRows

		if rg.NumRows == 0 {
			// empty group, nothing to read
			st.MinUs, st.MaxUs = 1, 0
			groups = append(groups, st)
			continue
		}

		cc, found := findColumn(rg.Columns, column)
		if !found {
			return nil, false
		}
		minV, okMin := decodeInt64(cc.MetaData.Statistics.MinValue, cc.MetaData.Statistics.Min)
		maxV, okMax := decodeInt64(cc.MetaData.Statistics.MaxValue, cc.MetaData.Statistics.Max)
		if !okMin || !okMax || minV > maxV {
			return nil, false
		}
		st.MinUs, st.MaxUs = minV, maxV
		groups = append(groups, st)
	}

	if md.NumRows != 0 && total != md.NumRows {
		return nil, false
	}
	return groups, true
}

func findColumn(cols []format.ColumnChunk, column string) (format.ColumnChunk, bool) {
	for _, cc := range cols {
		if strings.Join(cc.MetaData.PathInSchema, ".") == column {
			return cc, true
		}
	}
	return format.ColumnChunk{}, false
}

// decodeInt64 prefers the current statistics field and falls back to the
// deprecated one. INT64 statistics are 8 bytes little-endian.
func decodeInt64(current, legacy []byte) (int64, bool) {
	for _, b := range [][]byte{current, legacy} {
		if len(b) == 8 {
			return int64(binary.LittleEndian.Uint64(b)), true
		}
	}
	return 0, false
}

// PlanRowGroups returns, in file order, the indexes of groups intersecting any window.
func PlanRowGroups(groups []RowGroupStats, windows []Window) []int {
	if len(windows) == 0 {
		return nil
	}
	ws := make([]Window, len(windows))
	copy(ws, windows)
	sort.Slice(ws, func(i, j int) bool { return ws[i].StartUs < ws[j].StartUs })

	// maxEnd[i] = max EndUs over ws[:i+1], so a prefix can be rejected in one look
	maxEnd := make([]int64, len(ws))
	for i, w := range ws {
		maxEnd[i] = w.EndUs
		if i > 0 && maxEnd[i-1] > maxEnd[i] {
			maxEnd[i] = maxEnd[i-1]
		}
	}

	var planned []int
	for gi, g := range groups {
		if g.NumRows == 0 || g.MinUs > g.MaxUs {
			continue
		}
		// windows starting after the group's max cannot intersect
		n := sort.Search(len(ws), func(i int) bool { return ws[i].StartUs > g.MaxUs })
		if n == 0 {
			continue
		}
		if maxEnd[n-1] > g.MinUs {
			planned = append(planned, gi)
		}
	}
	return planned
}
