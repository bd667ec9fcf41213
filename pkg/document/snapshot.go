package document

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

// Snapshot is the object listing a CAD application exports for one
// document. Field names follow the application's own spelling.
type Snapshot struct {
	Objects []SnapshotObject `json:"objects"`
}

// SnapshotObject is one exported object. Only TypeId, Name, Label and
// Properties are required; placement, shape data and expressions are
// optional.
type SnapshotObject struct {
	TypeID      string                  `json:"TypeId"`
	Name        string                  `json:"Name"`
	Label       string                  `json:"Label"`
	Properties  map[string]object.Value `json:"Properties"`
	Placement   map[string]object.Value `json:"Placement,omitempty"`
	Shape       map[string]object.Value `json:"Shape,omitempty"`
	Expressions map[string]string       `json:"ExpressionEngine,omitempty"`
	Visibility  *bool                   `json:"Visibility,omitempty"`
}

// ObjectData maps the exported object onto the versioned object model.
// Objects without an explicit visibility are visible.
func (o SnapshotObject) ObjectData() *object.ObjectData {
	visible := true
	if o.Visibility != nil {
		visible = *o.Visibility
	}
	label := o.Label
	if label == "" {
		label = o.Name
	}
	d := &object.ObjectData{
		TypeID:     o.TypeID,
		Name:       o.Name,
		Label:      label,
		Properties: object.CloneValues(o.Properties),
		Placement:  object.CloneValues(o.Placement),
		ShapeData:  object.CloneValues(o.Shape),
		Visibility: visible,
	}
	if len(o.Expressions) > 0 {
		d.Expressions = make(map[string]string, len(o.Expressions))
		for k, v := range o.Expressions {
			d.Expressions[k] = v
		}
	}
	return d
}

// ParseSnapshot decodes a snapshot document.
func ParseSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, vcserr.Validation("parse snapshot", "%v", err)
	}
	return &s, nil
}

// LoadSnapshotFile reads a snapshot exported to path.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vcserr.NotFound("load snapshot", path)
		}
		return nil, vcserr.StoreIO("load snapshot", path, err)
	}
	defer f.Close()

	s, err := ParseSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// FileHandle is a Handle backed by a snapshot file that the CAD
// application rewrites on save.
type FileHandle struct {
	Path string
}

func (h FileHandle) TakeSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadSnapshotFile(h.Path)
}
