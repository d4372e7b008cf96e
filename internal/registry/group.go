// Package registry groups, filters and summarizes registry records.
//
// Every function here is pure: records are read, never mutated, and each
// call returns fresh slices and maps.
package registry

import "github.com/ThreeSixtyGiving/Dashboard/internal/core"

// By selects the grouping key of a record.
type By int

const (
	ByPublisherName By = iota
	ByIdentifier
)

// ParseBy maps the query values "publisher" and "file" onto a By.
func ParseBy(s string) (By, bool) {
	switch s {
	case "", "publisher":
		return ByPublisherName, true
	case "file", "identifier":
		return ByIdentifier, true
	}
	return 0, false
}

func (b By) String() string {
	if b == ByIdentifier {
		return "file"
	}
	return "publisher"
}

// Key is a grouping key. Records whose key field is absent share the
// invalid key.
type Key struct {
	Value string
	Valid bool
}

func (k Key) String() string {
	if !k.Valid {
		return ""
	}
	return k.Value
}

func (b By) key(r core.Record) Key {
	var ns core.NullString
	if b == ByIdentifier {
		ns = r.Identifier
	} else {
		ns = r.Publisher.Name
	}
	return Key{Value: ns.String, Valid: ns.Valid}
}

// Group is one entry of a Grouping.
type Group struct {
	Key     Key
	Records []core.Record
}

// Grouping maps keys to records, keeping keys in first-seen order and
// records in input order.
type Grouping struct {
	by     By
	keys   []Key
	groups map[Key][]core.Record
}

// GroupRecords partitions records by the chosen key.
func GroupRecords(records []core.Record, by By) *Grouping {
	g := &Grouping{by: by, groups: make(map[Key][]core.Record)}
	for _, r := range records {
		g.add(r)
	}
	return g
}

func (g *Grouping) add(r core.Record) {
	k := g.by.key(r)
	if _, ok := g.groups[k]; !ok {
		g.keys = append(g.keys, k)
	}
	g.groups[k] = append(g.groups[k], r)
}

func (g *Grouping) By() By { return g.by }

func (g *Grouping) Len() int { return len(g.keys) }

// Get returns the records of one group.
func (g *Grouping) Get(k Key) ([]core.Record, bool) {
	recs, ok := g.groups[k]
	return recs, ok
}

// Groups returns the groups in key order.
func (g *Grouping) Groups() []Group {
	out := make([]Group, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, Group{Key: k, Records: g.groups[k]})
	}
	return out
}

// Records flattens the grouping back into a single slice, group by group.
func (g *Grouping) Records() []core.Record {
	var out []core.Record
	for _, k := range g.keys {
		out = append(out, g.groups[k]...)
	}
	return out
}

// Filter keeps the records matching every predicate. Groups left empty
// are dropped; surviving groups keep their relative order.
func (g *Grouping) Filter(preds ...Predicate) *Grouping {
	out := &Grouping{by: g.by, groups: make(map[Key][]core.Record)}
	for _, k := range g.keys {
		for _, r := range g.groups[k] {
			if Match(r, preds...) {
				out.add(r)
			}
		}
	}
	return out
}
