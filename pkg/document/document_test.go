package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/vcserr"
)

type staticHandle struct {
	snap *Snapshot
	err  error
}

func (h staticHandle) TakeSnapshot(context.Context) (*Snapshot, error) { return h.snap, h.err }

const boxSnapshot = `{
  "objects": [
    {"TypeId": "Part::Box", "Name": "Box", "Label": "Cube",
     "Properties": {"Length": 10.0, "Width": 5, "Color": "red"},
     "Placement": {"x": 1.5},
     "ExpressionEngine": {"Length": "Width * 2"}},
    {"TypeId": "Sketcher::SketchObject", "Name": "Sketch", "Label": "",
     "Properties": {}, "Visibility": false}
  ]
}`

func TestRegistryOpenVariants(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	snap, err := ParseSnapshot(strings.NewReader(boxSnapshot))
	require.NoError(t, err)
	require.NoError(t, reg.Register("live", map[string]object.Value{"name": object.Str("Bracket")}, staticHandle{snap: snap}))
	require.NoError(t, reg.Register("meta", map[string]object.Value{"name": object.Str("Plate")}, nil))

	doc, err := reg.Open(ctx, "live")
	require.NoError(t, err)
	assert.IsType(t, &LiveDocument{}, doc)

	objs, err := doc.Objects(ctx)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "Part::Box", objs[0].TypeID)
	assert.Equal(t, "Cube", objs[0].Label)
	assert.Equal(t, object.KindFloat, objs[0].Properties["Length"].Kind())
	assert.Equal(t, object.KindInt, objs[0].Properties["Width"].Kind())
	assert.Equal(t, "Width * 2", objs[0].Expressions["Length"])
	assert.True(t, objs[0].Visibility)
	assert.Equal(t, "Sketch", objs[1].Label, "empty label falls back to name")
	assert.False(t, objs[1].Visibility)

	meta, err := reg.Open(ctx, "meta")
	require.NoError(t, err)
	assert.IsType(t, &MetadataDocument{}, meta)
	objs, err = meta.Objects(ctx)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, MetadataTypeID, objs[0].TypeID)
	assert.Equal(t, MetadataObjectName, objs[0].Name)
	assert.Equal(t, "Plate", objs[0].Label)
	id, _ := objs[0].Properties["document_id"].AsString()
	assert.Equal(t, "meta", id)

	assert.Equal(t, []string{"live", "meta"}, reg.IDs())
}

func TestRegistryUnknownDocument(t *testing.T) {
	_, err := NewRegistry().Open(context.Background(), "nope")
	assert.True(t, errors.Is(err, vcserr.ErrNotFound))
}

func TestLiveDocumentRejectsDuplicateNames(t *testing.T) {
	reg := NewRegistry()
	snap := &Snapshot{Objects: []SnapshotObject{{Name: "A"}, {Name: "A"}}}
	require.NoError(t, reg.Register("d", nil, staticHandle{snap: snap}))
	doc, err := reg.Open(context.Background(), "d")
	require.NoError(t, err)
	_, err = doc.Objects(context.Background())
	assert.True(t, errors.Is(err, vcserr.ErrValidation))
}

func TestLiveDocumentHandleFailure(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("d", nil, staticHandle{err: errors.New("application closed")}))
	doc, err := reg.Open(context.Background(), "d")
	require.NoError(t, err)
	_, err = doc.Objects(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application closed")
}

func TestFileHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bracket.json")
	require.NoError(t, os.WriteFile(path, []byte(boxSnapshot), 0o644))

	snap, err := FileHandle{Path: path}.TakeSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Objects, 2)

	_, err = LoadSnapshotFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, vcserr.ErrNotFound))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadSnapshotFile(bad)
	assert.True(t, errors.Is(err, vcserr.ErrValidation))
}
