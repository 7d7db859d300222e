// Package boundary implements the slice boundary guard: once a slice
// has been issued, downstream code may only ever request the turns it
// admitted. Guard.CheckAccess enforces that; BoundedQueryBuilder
// assembles the only SQL shape allowed to reference those ids, with no
// string concatenation of identifiers.
package boundary

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/graphkernel/core/canon"
	"github.com/davidahmann/graphkernel/core/turn"
)

// Guard pairs a slice's fingerprint with its authorized id set.
type Guard struct {
	SliceFingerprint string
	authorizedIDs    []turn.ID // ordered ascending, deduplicated
	BoundaryHash     string
}

// NewGuard builds a Guard over ids, sorting and deduplicating them, and
// computing boundary_hash = xxhash64(ordered id list).
func NewGuard(sliceFingerprint string, ids []turn.ID) (Guard, error) {
	ordered := canon.SortTurnIDs(ids)
	ordered = dedupe(ordered)

	strs := make([]string, len(ordered))
	for i, id := range ordered {
		strs[i] = id.String()
	}
	b, err := canon.Bytes(strs)
	if err != nil {
		return Guard{}, fmt.Errorf("boundary: canonicalize ids: %w", err)
	}

	return Guard{
		SliceFingerprint: sliceFingerprint,
		authorizedIDs:    ordered,
		BoundaryHash:     canon.Fingerprint16(b),
	}, nil
}

func dedupe(sorted []turn.ID) []turn.ID {
	out := sorted[:0:0]
	var prev turn.ID
	first := true
	for _, id := range sorted {
		if first || id != prev {
			out = append(out, id)
			prev = id
			first = false
		}
	}
	return out
}

// AuthorizedIDs returns the guard's ordered, deduplicated id set.
func (g Guard) AuthorizedIDs() []turn.ID {
	return append([]turn.ID(nil), g.authorizedIDs...)
}

// CheckResult is Authorized, or a Violation carrying every id that
// fell outside the guard's authorized set.
type CheckResult struct {
	Authorized       bool
	UnauthorizedIDs  []turn.ID
	SliceFingerprint string
	Timestamp        time.Time
	Context          string
}

// CheckAccess reports whether every id in requested is authorized. On
// violation it returns the full set of unauthorized ids; callers are
// expected to emit SLICE_BOUNDARY_VIOLATION and increment the
// corresponding incident counter (see core/incident).
func (g Guard) CheckAccess(requested []turn.ID, context string) CheckResult {
	authorized := make(map[turn.ID]bool, len(g.authorizedIDs))
	for _, id := range g.authorizedIDs {
		authorized[id] = true
	}

	var unauthorized []turn.ID
	for _, id := range requested {
		if !authorized[id] {
			unauthorized = append(unauthorized, id)
		}
	}

	if len(unauthorized) == 0 {
		return CheckResult{Authorized: true, SliceFingerprint: g.SliceFingerprint, Timestamp: time.Now(), Context: context}
	}
	sort.Slice(unauthorized, func(i, j int) bool { return unauthorized[i].Less(unauthorized[j]) })
	return CheckResult{
		Authorized:       false,
		UnauthorizedIDs:  unauthorized,
		SliceFingerprint: g.SliceFingerprint,
		Timestamp:        time.Now(),
		Context:          context,
	}
}

// allowedFilterColumns is the safelist of literal columns a bounded
// query may filter or order by; it is the sole escape hatch for
// anything beyond the mandatory id = ANY($1) clause.
var allowedFilterColumns = map[string]bool{
	"session_id": true,
	"role":       true,
	"phase":      true,
}

var allowedOrderColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"salience":   true,
}

// QueryBuilder assembles a bounded SELECT of the shape:
//
//	SELECT <columns> FROM <table> WHERE id = ANY($1) [AND <safe filters>] [ORDER BY <allowed columns>]
//
// The only way to reference ids is the guard's own id array ($1);
// there is no setter that accepts a raw identifier list or appends
// arbitrary SQL, so query text can never be built by string
// concatenation of caller-supplied identifiers.
type QueryBuilder struct {
	table   string
	columns []string
	filters []string // safelisted column names, added only via WithFilter
	order   []string
}

// NewQueryBuilder starts a builder over table, selecting columns.
func NewQueryBuilder(table string, columns ...string) *QueryBuilder {
	return &QueryBuilder{table: table, columns: columns}
}

// WithFilter adds "AND <column> = $<n>" where column must be on the
// safelist; n is the builder's next placeholder index after $1 (the id
// array). Unknown columns are rejected rather than silently dropped.
func (b *QueryBuilder) WithFilter(column string) (*QueryBuilder, error) {
	if !allowedFilterColumns[column] {
		return nil, fmt.Errorf("boundary: column %q is not on the filter safelist", column)
	}
	b.filters = append(b.filters, column)
	return b, nil
}

// WithOrderBy appends column to the ORDER BY clause; column must be on
// the safelist.
func (b *QueryBuilder) WithOrderBy(column string) (*QueryBuilder, error) {
	if !allowedOrderColumns[column] {
		return nil, fmt.Errorf("boundary: column %q is not on the order-by safelist", column)
	}
	b.order = append(b.order, column)
	return b, nil
}

// Build renders the final SQL text. $1 is always the guard's id array;
// filter placeholders follow in the order WithFilter was called.
func (b *QueryBuilder) Build() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE id = ANY($1)", strings.Join(b.columns, ", "), b.table)
	for i, col := range b.filters {
		fmt.Fprintf(&sb, " AND %s = $%d", col, i+2)
	}
	if len(b.order) > 0 {
		fmt.Fprintf(&sb, " ORDER BY %s", strings.Join(b.order, ", "))
	}
	return sb.String()
}
