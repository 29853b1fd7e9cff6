package timeline

import (
	"sort"
	"time"

	"github.com/coreman2200/relive/internal/geo"
)

// Record is one pinned memory. Records are owned by the host and treated as
// read-only here.
type Record struct {
	ID        string     `json:"id" yaml:"id"`
	Date      *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	Lat       float64    `json:"lat" yaml:"lat"`
	Lng       float64    `json:"lng" yaml:"lng"`
	Caption   string     `json:"caption,omitempty" yaml:"caption,omitempty"`
	Images    []string   `json:"images,omitempty" yaml:"images,omitempty"`
}

// EffectiveTime is the user-supplied date when present, else the creation time.
func (r Record) EffectiveTime() time.Time {
	if r.Date != nil && !r.Date.IsZero() {
		return *r.Date
	}
	return r.CreatedAt
}

func (r Record) Point() geo.Point { return geo.Point{Lat: r.Lat, Lng: r.Lng} }

// Timeline is an immutable chronologically ordered record sequence.
// A changed record set produces a new Timeline; an existing one is never
// reordered in place.
type Timeline struct {
	records []Record
}

// Sort orders records by effective timestamp. Equal timestamps keep their
// input order. The input slice is not modified.
func Sort(records []Record) Timeline {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveTime().Before(out[j].EffectiveTime())
	})
	return Timeline{records: out}
}

func (t Timeline) Len() int        { return len(t.records) }
func (t Timeline) Empty() bool     { return len(t.records) == 0 }
func (t Timeline) At(i int) Record { return t.records[i] }

// Records returns a copy of the ordered records.
func (t Timeline) Records() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Points returns the coordinates in timeline order.
func (t Timeline) Points() []geo.Point {
	out := make([]geo.Point, len(t.records))
	for i, r := range t.records {
		out[i] = r.Point()
	}
	return out
}

// IndexOf returns the position of the record with id, or -1.
func (t Timeline) IndexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, r := range t.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
