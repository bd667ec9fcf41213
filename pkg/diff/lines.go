package diff

import "strings"

// LineOpType classifies a line in an edit script.
type LineOpType int

const (
	LineEqual  LineOpType = iota // Line is unchanged between a and b.
	LineInsert                   // Line was inserted (present in b only).
	LineDelete                   // Line was deleted (present in a only).
)

// LineOp is a single operation in an edit script produced by MyersDiff.
type LineOp struct {
	Type LineOpType
	Line string
}

// LineDiff splits a and b into lines and returns the edit script between
// them. A trailing newline does not produce an extra empty line.
func LineDiff(a, b string) []LineOp {
	return MyersDiff(splitLines(a), splitLines(b))
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// MyersDiff computes the shortest edit script to transform a into b
// using the Myers diff algorithm operating on whole lines.
//
// The algorithm runs in O((N+M)*D) time where N and M are the lengths
// of a and b, and D is the size of the minimum edit script.
func MyersDiff(a, b []string) []LineOp {
	n := len(a)
	m := len(b)

	if n == 0 && m == 0 {
		return nil
	}
	if n == 0 {
		ops := make([]LineOp, m)
		for i, line := range b {
			ops[i] = LineOp{Type: LineInsert, Line: line}
		}
		return ops
	}
	if m == 0 {
		ops := make([]LineOp, n)
		for i, line := range a {
			ops[i] = LineOp{Type: LineDelete, Line: line}
		}
		return ops
	}

	max := n + m
	size := 2*max + 1
	v := make([]int, size)

	// trace[d] holds a snapshot of v after processing edit distance d.
	var trace [][]int

	for d := 0; d <= max; d++ {
		for k := -d; k <= d; k += 2 {
			idx := k + max
			var x int
			if k == -d || (k != d && v[idx-1] < v[idx+1]) {
				x = v[idx+1] // move down (insert)
			} else {
				x = v[idx-1] + 1 // move right (delete)
			}
			y := x - k

			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[idx] = x

			if x >= n && y >= m {
				snap := make([]int, size)
				copy(snap, v)
				trace = append(trace, snap)
				return backtrack(trace, a, b, d)
			}
		}

		snap := make([]int, size)
		copy(snap, v)
		trace = append(trace, snap)
	}

	return nil
}

// backtrack reconstructs the edit script from the trace of v snapshots.
func backtrack(trace [][]int, a, b []string, dFinal int) []LineOp {
	max := len(a) + len(b)
	x := len(a)
	y := len(b)

	var ops []LineOp
	for d := dFinal; d > 0; d-- {
		k := x - y
		idx := k + max
		vPrev := trace[d-1]

		var prevK int
		if k == -d || (k != d && vPrev[idx-1] < vPrev[idx+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := vPrev[prevK+max]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			ops = append(ops, LineOp{Type: LineEqual, Line: a[x]})
		}

		if k == prevK+1 {
			x--
			ops = append(ops, LineOp{Type: LineDelete, Line: a[x]})
		} else {
			y--
			ops = append(ops, LineOp{Type: LineInsert, Line: b[y]})
		}
	}

	for x > 0 && y > 0 {
		x--
		y--
		ops = append(ops, LineOp{Type: LineEqual, Line: a[x]})
	}

	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	return ops
}
