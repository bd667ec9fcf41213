// Package diff compares CAD object snapshots, trees and commits.
package diff

import (
	"math"
	"sort"

	"github.com/odvcencio/cadvc/pkg/object"
)

// ChangeType classifies what happened to an object between two trees.
type ChangeType string

const (
	Added    ChangeType = "ADDED"
	Deleted  ChangeType = "DELETED"
	Modified ChangeType = "MODIFIED"
)

// PropertyChangeType classifies a single property difference.
type PropertyChangeType string

const (
	Addition    PropertyChangeType = "ADDITION"
	Deletion    PropertyChangeType = "DELETION"
	ValueChange PropertyChangeType = "VALUE_CHANGE"
	TypeChange  PropertyChangeType = "TYPE_CHANGE"
)

// Attribute keys report changes to object fields that are not properties.
// The conflict resolver uses the same keys.
const (
	AttrLabel      = "@label"
	AttrVisibility = "@visibility"
	AttrPlacement  = "@placement"
)

// Shape summary keys read from ObjectData.ShapeData.
const (
	ShapeVolume   = "volume"
	ShapeArea     = "area"
	ShapeVertices = "vertices"
	ShapeEdges    = "edges"
	ShapeFaces    = "faces"
)

// PropertyChange is one differing property. Old is null for an addition and
// New is null for a deletion.
type PropertyChange struct {
	Property string             `json:"property"`
	Type     PropertyChangeType `json:"change_type"`
	Old      object.Value       `json:"old_value"`
	New      object.Value       `json:"new_value"`
}

// ShapeDiff summarizes geometry changes. VolumeChange and AreaChange are
// relative, (new-old)/old, and nil when the old value is not positive.
type ShapeDiff struct {
	VolumeChange *float64 `json:"volume_change,omitempty"`
	AreaChange   *float64 `json:"area_change,omitempty"`
	VertexDelta  int64    `json:"vertex_count_change"`
	EdgeDelta    int64    `json:"edge_count_change"`
	FaceDelta    int64    `json:"face_count_change"`
}

// Empty reports whether the shape summaries were equivalent.
func (s *ShapeDiff) Empty() bool {
	return s == nil || (s.VolumeChange == nil && s.AreaChange == nil &&
		s.VertexDelta == 0 && s.EdgeDelta == 0 && s.FaceDelta == 0)
}

// ExpressionChange is a differing expression binding. An empty side means
// the binding is absent there.
type ExpressionChange struct {
	Property string `json:"property"`
	Old      string `json:"old"`
	New      string `json:"new"`
}

// ObjectDiff is the difference of one named object.
type ObjectDiff struct {
	ObjectID          string             `json:"object_id"`
	TypeID            string             `json:"type_id,omitempty"`
	ChangeType        ChangeType         `json:"change_type"`
	OldHash           object.Hash        `json:"old_hash,omitempty"`
	NewHash           object.Hash        `json:"new_hash,omitempty"`
	PropertyChanges   []PropertyChange   `json:"property_changes,omitempty"`
	ShapeChanges      *ShapeDiff         `json:"shape_changes,omitempty"`
	ExpressionChanges []ExpressionChange `json:"expression_changes,omitempty"`
}

// Empty reports whether a modification carries no material change.
func (d *ObjectDiff) Empty() bool {
	return d.ChangeType == Modified && len(d.PropertyChanges) == 0 &&
		d.ShapeChanges.Empty() && len(d.ExpressionChanges) == 0
}

// Differ compares objects with a float tolerance.
type Differ struct {
	Tolerance float64
}

// New returns a Differ using object.DefaultTolerance.
func New() *Differ {
	return &Differ{Tolerance: object.DefaultTolerance}
}

var defaultDiffer = New()

// DiffObjects compares two versions of an object with the default
// tolerance. Either side may be nil.
func DiffObjects(before, after *object.ObjectData) *ObjectDiff {
	return defaultDiffer.DiffObjects(before, after)
}

// DiffObjects compares two versions of an object. A nil before means the
// object was added and a nil after means it was deleted.
func (df *Differ) DiffObjects(before, after *object.ObjectData) *ObjectDiff {
	switch {
	case before == nil && after == nil:
		return &ObjectDiff{ChangeType: Modified}
	case before == nil:
		return &ObjectDiff{ObjectID: after.Name, TypeID: after.TypeID, ChangeType: Added}
	case after == nil:
		return &ObjectDiff{ObjectID: before.Name, TypeID: before.TypeID, ChangeType: Deleted}
	}

	d := &ObjectDiff{ObjectID: after.Name, TypeID: after.TypeID, ChangeType: Modified}
	d.PropertyChanges = df.diffProperties(before.Properties, after.Properties)
	d.PropertyChanges = append(d.PropertyChanges, df.diffAttributes(before, after)...)
	if sd := df.diffShape(before.ShapeData, after.ShapeData); !sd.Empty() {
		d.ShapeChanges = sd
	}
	d.ExpressionChanges = diffExpressions(before.Expressions, after.Expressions)
	return d
}

func (df *Differ) diffProperties(before, after map[string]object.Value) []PropertyChange {
	keys := unionKeys(before, after)
	var out []PropertyChange
	for _, k := range keys {
		if pc, ok := df.compareValue(k, before, after); ok {
			out = append(out, pc)
		}
	}
	return out
}

func (df *Differ) compareValue(key string, before, after map[string]object.Value) (PropertyChange, bool) {
	ov, inOld := before[key]
	nv, inNew := after[key]
	switch {
	case !inOld:
		return PropertyChange{Property: key, Type: Addition, New: nv}, true
	case !inNew:
		return PropertyChange{Property: key, Type: Deletion, Old: ov}, true
	case ov.Kind() != nv.Kind():
		return PropertyChange{Property: key, Type: TypeChange, Old: ov, New: nv}, true
	case !ov.EqualWithin(nv, df.Tolerance):
		return PropertyChange{Property: key, Type: ValueChange, Old: ov, New: nv}, true
	}
	return PropertyChange{}, false
}

func (df *Differ) diffAttributes(before, after *object.ObjectData) []PropertyChange {
	var out []PropertyChange
	if before.Label != after.Label {
		out = append(out, PropertyChange{
			Property: AttrLabel, Type: ValueChange,
			Old: object.Str(before.Label), New: object.Str(after.Label),
		})
	}
	if before.Visibility != after.Visibility {
		out = append(out, PropertyChange{
			Property: AttrVisibility, Type: ValueChange,
			Old: object.Bool(before.Visibility), New: object.Bool(after.Visibility),
		})
	}
	if !object.MapsEqualWithin(before.Placement, after.Placement, df.Tolerance) {
		pc := PropertyChange{Property: AttrPlacement, Type: ValueChange}
		switch {
		case len(before.Placement) == 0:
			pc.Type = Addition
		case len(after.Placement) == 0:
			pc.Type = Deletion
		}
		if len(before.Placement) > 0 {
			pc.Old = object.Map(before.Placement)
		}
		if len(after.Placement) > 0 {
			pc.New = object.Map(after.Placement)
		}
		out = append(out, pc)
	}
	return out
}

func (df *Differ) diffShape(before, after map[string]object.Value) *ShapeDiff {
	if len(before) == 0 || len(after) == 0 {
		return nil
	}
	sd := &ShapeDiff{
		VolumeChange: df.relativeChange(before[ShapeVolume], after[ShapeVolume]),
		AreaChange:   df.relativeChange(before[ShapeArea], after[ShapeArea]),
		VertexDelta:  countDelta(before[ShapeVertices], after[ShapeVertices]),
		EdgeDelta:    countDelta(before[ShapeEdges], after[ShapeEdges]),
		FaceDelta:    countDelta(before[ShapeFaces], after[ShapeFaces]),
	}
	return sd
}

func (df *Differ) relativeChange(before, after object.Value) *float64 {
	v1, ok1 := before.Number()
	v2, ok2 := after.Number()
	if !ok1 || !ok2 || v1 <= 0 {
		return nil
	}
	if math.Abs(v2-v1) <= df.Tolerance {
		return nil
	}
	rel := (v2 - v1) / v1
	return &rel
}

func countDelta(before, after object.Value) int64 {
	v1, ok1 := before.Number()
	v2, ok2 := after.Number()
	if !ok1 || !ok2 {
		return 0
	}
	return int64(v2) - int64(v1)
}

func diffExpressions(before, after map[string]string) []ExpressionChange {
	keys := unionKeys(before, after)
	var out []ExpressionChange
	for _, k := range keys {
		if before[k] != after[k] {
			out = append(out, ExpressionChange{Property: k, Old: before[k], New: after[k]})
		}
	}
	return out
}

func unionKeys[V any](a, b map[string]V) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
