package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/cadvc/pkg/diff"
	"github.com/odvcencio/cadvc/pkg/object"
)

// ExprPrefix prefixes change keys of expression bindings.
const ExprPrefix = "expr:"

// Change keys for the object fields the differ reports outside its
// property list.
const (
	KeyShape  = "@shape"
	KeyTypeID = "@type_id"
)

// change is the new state of one key relative to base. A deleted change
// removes the key.
type change struct {
	value   object.Value
	deleted bool
}

func (c change) equal(o change, tol float64) bool {
	if c.deleted || o.deleted {
		return c.deleted == o.deleted
	}
	return c.value.EqualWithin(o.value, tol)
}

type changeSet map[string]change

// changes lists what modified changed relative to base. Without a base
// every property of modified counts as a change.
func changes(base, modified *object.ObjectData, tol float64) changeSet {
	out := changeSet{}
	if modified == nil {
		return out
	}
	if base == nil {
		for k, v := range modified.Properties {
			out[k] = change{value: v}
		}
		return out
	}

	for k, bv := range base.Properties {
		mv, ok := modified.Properties[k]
		if !ok {
			out[k] = change{deleted: true}
			continue
		}
		if !bv.EqualWithin(mv, tol) {
			out[k] = change{value: mv}
		}
	}
	for k, mv := range modified.Properties {
		if _, ok := base.Properties[k]; !ok {
			out[k] = change{value: mv}
		}
	}

	if base.Label != modified.Label {
		out[diff.AttrLabel] = change{value: object.Str(modified.Label)}
	}
	if base.Visibility != modified.Visibility {
		out[diff.AttrVisibility] = change{value: object.Bool(modified.Visibility)}
	}
	if !object.MapsEqualWithin(base.Placement, modified.Placement, tol) {
		if len(modified.Placement) == 0 {
			out[diff.AttrPlacement] = change{deleted: true}
		} else {
			out[diff.AttrPlacement] = change{value: object.Map(modified.Placement)}
		}
	}
	if !object.MapsEqualWithin(base.ShapeData, modified.ShapeData, tol) {
		if len(modified.ShapeData) == 0 {
			out[KeyShape] = change{deleted: true}
		} else {
			out[KeyShape] = change{value: object.Map(modified.ShapeData)}
		}
	}
	if base.TypeID != modified.TypeID {
		out[KeyTypeID] = change{value: object.Str(modified.TypeID)}
	}

	for k, be := range base.Expressions {
		me, ok := modified.Expressions[k]
		if !ok {
			out[ExprPrefix+k] = change{deleted: true}
		} else if me != be {
			out[ExprPrefix+k] = change{value: object.Str(me)}
		}
	}
	for k, me := range modified.Expressions {
		if _, ok := base.Expressions[k]; !ok {
			out[ExprPrefix+k] = change{value: object.Str(me)}
		}
	}
	return out
}

// values exposes a change set with deletions as null.
func (cs changeSet) values() map[string]object.Value {
	out := make(map[string]object.Value, len(cs))
	for k, c := range cs {
		if c.deleted {
			out[k] = object.Null()
			continue
		}
		out[k] = c.value
	}
	return out
}

func (cs changeSet) keys() []string {
	keys := make([]string, 0, len(cs))
	for k := range cs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// apply writes one change into d.
func apply(d *object.ObjectData, key string, c change) error {
	switch {
	case key == diff.AttrLabel:
		s, ok := c.value.AsString()
		if !ok && !c.deleted {
			return fmt.Errorf("label change is %s, not string", c.value.Kind())
		}
		d.Label = s
	case key == diff.AttrVisibility:
		b, ok := c.value.AsBool()
		if !ok && !c.deleted {
			return fmt.Errorf("visibility change is %s, not bool", c.value.Kind())
		}
		d.Visibility = b
	case key == diff.AttrPlacement:
		if c.deleted {
			d.Placement = nil
			return nil
		}
		m, ok := c.value.AsMap()
		if !ok {
			return fmt.Errorf("placement change is %s, not map", c.value.Kind())
		}
		d.Placement = object.CloneValues(m)
	case key == KeyShape:
		if c.deleted {
			d.ShapeData = nil
			return nil
		}
		m, ok := c.value.AsMap()
		if !ok {
			return fmt.Errorf("shape change is %s, not map", c.value.Kind())
		}
		d.ShapeData = object.CloneValues(m)
	case key == KeyTypeID:
		s, ok := c.value.AsString()
		if !ok {
			return fmt.Errorf("type id change is %s, not string", c.value.Kind())
		}
		d.TypeID = s
	case strings.HasPrefix(key, ExprPrefix):
		prop := strings.TrimPrefix(key, ExprPrefix)
		if c.deleted {
			delete(d.Expressions, prop)
			return nil
		}
		s, ok := c.value.AsString()
		if !ok {
			return fmt.Errorf("expression change for %s is %s, not string", prop, c.value.Kind())
		}
		if d.Expressions == nil {
			d.Expressions = map[string]string{}
		}
		d.Expressions[prop] = s
	default:
		if c.deleted {
			delete(d.Properties, key)
			return nil
		}
		if d.Properties == nil {
			d.Properties = map[string]object.Value{}
		}
		d.Properties[key] = c.value.Clone()
	}
	return nil
}
