package diff

import (
	"fmt"
	"strings"

	"github.com/odvcencio/cadvc/pkg/object"
)

// FormatDiff renders an object diff for humans.
//
// Output format:
//
//	~ Box [Part::Box] (modified)
//	  properties:
//	    ~ Length: 10.0 -> 12.0
//	    + Color: "red"
//	  shape:
//	    volume: +20.00%
//	  expressions:
//	    Length: "Width * 2" -> "Width * 3"
func FormatDiff(d *ObjectDiff) string {
	if d == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", changeMarker(d.ChangeType), d.ObjectID)
	if d.TypeID != "" {
		fmt.Fprintf(&b, " [%s]", d.TypeID)
	}
	fmt.Fprintf(&b, " (%s)\n", strings.ToLower(string(d.ChangeType)))

	if len(d.PropertyChanges) > 0 {
		b.WriteString("  properties:\n")
		for _, pc := range d.PropertyChanges {
			writePropertyChange(&b, pc)
		}
	}

	if !d.ShapeChanges.Empty() {
		s := d.ShapeChanges
		b.WriteString("  shape:\n")
		if s.VolumeChange != nil {
			fmt.Fprintf(&b, "    volume: %+.2f%%\n", *s.VolumeChange*100)
		}
		if s.AreaChange != nil {
			fmt.Fprintf(&b, "    area: %+.2f%%\n", *s.AreaChange*100)
		}
		for _, c := range []struct {
			name  string
			delta int64
		}{{"vertices", s.VertexDelta}, {"edges", s.EdgeDelta}, {"faces", s.FaceDelta}} {
			if c.delta != 0 {
				fmt.Fprintf(&b, "    %s: %+d\n", c.name, c.delta)
			}
		}
	}

	if len(d.ExpressionChanges) > 0 {
		b.WriteString("  expressions:\n")
		for _, ec := range d.ExpressionChanges {
			fmt.Fprintf(&b, "    %s: %s -> %s\n", ec.Property, quoteOrNone(ec.Old), quoteOrNone(ec.New))
		}
	}
	return b.String()
}

func writePropertyChange(b *strings.Builder, pc PropertyChange) {
	switch pc.Type {
	case Addition:
		fmt.Fprintf(b, "    + %s: %s\n", pc.Property, pc.New)
	case Deletion:
		fmt.Fprintf(b, "    - %s: %s\n", pc.Property, pc.Old)
	case TypeChange:
		fmt.Fprintf(b, "    ! %s: %s (%s) -> %s (%s)\n", pc.Property, pc.Old, pc.Old.Kind(), pc.New, pc.New.Kind())
	default:
		oldS, oldOK := pc.Old.AsString()
		newS, newOK := pc.New.AsString()
		if oldOK && newOK && (strings.Contains(oldS, "\n") || strings.Contains(newS, "\n")) {
			fmt.Fprintf(b, "    ~ %s:\n", pc.Property)
			for _, op := range LineDiff(oldS, newS) {
				switch op.Type {
				case LineDelete:
					fmt.Fprintf(b, "      -%s\n", op.Line)
				case LineInsert:
					fmt.Fprintf(b, "      +%s\n", op.Line)
				case LineEqual:
					fmt.Fprintf(b, "       %s\n", op.Line)
				}
			}
			return
		}
		fmt.Fprintf(b, "    ~ %s: %s -> %s\n", pc.Property, pc.Old, pc.New)
	}
}

// Summary renders a tree diff: a header, the stats line, then one line per
// object followed by the detail of every non-empty object diff.
func Summary(cd *CommitDiff) string {
	if cd == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "diff %s..%s\n", shortRef(cd.FromCommit), shortRef(cd.ToCommit))
	fmt.Fprintf(&b, "%d object(s) changed: %d added, %d modified, %d deleted, %d renamed\n",
		cd.Stats.Total(), cd.Stats.Added, cd.Stats.Modified, cd.Stats.Deleted, cd.Stats.Renamed)

	for i := range cd.ObjectDiffs {
		od := &cd.ObjectDiffs[i]
		hasDetail := len(od.PropertyChanges) > 0 || !od.ShapeChanges.Empty() || len(od.ExpressionChanges) > 0
		if hasDetail {
			b.WriteString(FormatDiff(od))
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", changeMarker(od.ChangeType), od.ObjectID)
	}
	return b.String()
}

func changeMarker(ct ChangeType) string {
	switch ct {
	case Added:
		return "+"
	case Deleted:
		return "-"
	}
	return "~"
}

func shortRef(ref string) string {
	if ref == NullRef {
		return ref
	}
	return object.Hash(ref).Short()
}

func quoteOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return fmt.Sprintf("%q", s)
}
