// Package resolve settles per-object merge conflicts between two versions
// of a CAD object.
package resolve

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/odvcencio/cadvc/pkg/object"
)

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	StrategyOurs        Strategy = "ours"
	StrategyTheirs      Strategy = "theirs"
	StrategyUnion       Strategy = "union"
	StrategyAuto        Strategy = "auto"
	StrategyInteractive Strategy = "interactive"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyOurs, StrategyTheirs, StrategyUnion, StrategyAuto, StrategyInteractive:
		return st, nil
	}
	return "", fmt.Errorf("unknown merge strategy %q", s)
}

// ResolutionType records how a ResolvedObject was produced.
type ResolutionType string

const (
	KeepOurs            ResolutionType = "keep_ours"
	KeepTheirs          ResolutionType = "keep_theirs"
	Union               ResolutionType = "union"
	AutoTrivial         ResolutionType = "auto_trivial"
	AutoNumeric         ResolutionType = "auto_numeric"
	ManualRequired      ResolutionType = "manual_required"
	InteractiveRequired ResolutionType = "interactive_required"
)

// ConflictType describes how the two sides diverged from the base.
type ConflictType string

const (
	ModifyModify ConflictType = "modify-modify"
	AddAdd       ConflictType = "add-add"
	DeleteModify ConflictType = "delete-modify" // ours deleted, theirs modified
	ModifyDelete ConflictType = "modify-delete" // ours modified, theirs deleted
)

// Category is the heuristic class of a conflict.
type Category string

const (
	CategoryAdditive Category = "additive"
	CategoryTrivial  Category = "trivial"
	CategoryNumeric  Category = "numeric"
	CategoryComplex  Category = "complex"
)

// MergeConflict holds the three versions of one object. Base is nil for
// objects added on both sides; Ours or Theirs is nil for a deletion.
type MergeConflict struct {
	ObjectID            string             `json:"object_id"`
	Base                *object.ObjectData `json:"base_version,omitempty"`
	Ours                *object.ObjectData `json:"our_version"`
	Theirs              *object.ObjectData `json:"their_version"`
	Type                ConflictType       `json:"conflict_type"`
	AutoResolvable      bool               `json:"auto_resolvable"`
	SuggestedResolution Strategy           `json:"suggested_resolution,omitempty"`
}

// ConflictInfo is the structured description handed to a human.
type ConflictInfo struct {
	ObjectID              string                  `json:"object_id"`
	ConflictType          ConflictType            `json:"conflict_type"`
	Category              Category                `json:"category"`
	ConflictingProperties []string                `json:"conflicting_properties"`
	OurChanges            map[string]object.Value `json:"our_changes"`
	TheirChanges          map[string]object.Value `json:"their_changes"`
	HasBase               bool                    `json:"has_base"`
}

// ResolvedObject is the outcome of resolving a conflict. A nil ObjectData
// means the conflict needs a human.
type ResolvedObject struct {
	ObjectData     *object.ObjectData `json:"object_data"`
	ResolutionType ResolutionType     `json:"resolution_type"`
	ConflictInfo   *ConflictInfo      `json:"conflict_info,omitempty"`
}

// Resolved reports whether the object was machine-resolved.
func (r ResolvedObject) Resolved() bool {
	return r.ResolutionType != ManualRequired && r.ResolutionType != InteractiveRequired
}

// Analysis is the categorization AUTO bases its decision on.
type Analysis struct {
	Category Category
	// ConflictingProperties are the keys both sides changed to different
	// values, sorted.
	ConflictingProperties []string
	// TrivialRules maps each conflicting key to the rule that matched it
	// when the category is trivial.
	TrivialRules map[string]string
	OurChanges   map[string]object.Value
	TheirChanges map[string]object.Value
	HasBase      bool
}

// Resolver resolves conflicts. The zero value is not usable; call New.
type Resolver struct {
	rules     []compiledRule
	tolerance float64
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*options)

type options struct {
	rules     []Rule
	tolerance float64
	logger    *slog.Logger
}

// WithRules replaces the trivial-field rule table.
func WithRules(rules []Rule) Option {
	return func(o *options) { o.rules = rules }
}

// WithTolerance sets the float tolerance for change detection.
func WithTolerance(tol float64) Option {
	return func(o *options) { o.tolerance = tol }
}

// WithLogger sets the logger. Optional, uses slog.Default() if nil.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a Resolver with DefaultRules unless WithRules is given.
func New(opts ...Option) (*Resolver, error) {
	o := options{rules: DefaultRules(), tolerance: object.DefaultTolerance}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	rules, err := compileRules(o.rules)
	if err != nil {
		return nil, fmt.Errorf("new resolver: %w", err)
	}
	return &Resolver{rules: rules, tolerance: o.tolerance, logger: o.logger}, nil
}

// Resolve applies strategy to c. It never fails: conflicts it cannot settle
// come back with a nil ObjectData and a ConflictInfo.
func (r *Resolver) Resolve(c *MergeConflict, strategy Strategy) ResolvedObject {
	switch strategy {
	case StrategyOurs:
		return ResolvedObject{ObjectData: c.Ours.Clone(), ResolutionType: KeepOurs}
	case StrategyTheirs:
		return ResolvedObject{ObjectData: c.Theirs.Clone(), ResolutionType: KeepTheirs}
	case StrategyUnion:
		return r.resolveUnion(c)
	case StrategyAuto:
		return r.resolveAuto(c)
	case StrategyInteractive:
		a := r.Analyze(c)
		return ResolvedObject{ResolutionType: InteractiveRequired, ConflictInfo: conflictInfo(c, a)}
	}
	r.logger.Warn("unknown merge strategy", "strategy", string(strategy), "object", c.ObjectID)
	a := r.Analyze(c)
	return ResolvedObject{ResolutionType: ManualRequired, ConflictInfo: conflictInfo(c, a)}
}

// Analyze categorizes c. Deletion conflicts are always complex.
func (r *Resolver) Analyze(c *MergeConflict) Analysis {
	ours := changes(c.Base, c.Ours, r.tolerance)
	theirs := changes(c.Base, c.Theirs, r.tolerance)
	a := Analysis{
		OurChanges:   ours.values(),
		TheirChanges: theirs.values(),
		HasBase:      c.Base != nil,
	}
	a.ConflictingProperties = r.conflicting(ours, theirs)

	if c.Ours == nil || c.Theirs == nil {
		a.Category = CategoryComplex
		return a
	}
	if len(a.ConflictingProperties) == 0 {
		a.Category = CategoryAdditive
		return a
	}

	trivial := make(map[string]string, len(a.ConflictingProperties))
	for _, k := range a.ConflictingProperties {
		name, ok := trivialRule(r.rules, k)
		if !ok {
			trivial = nil
			break
		}
		trivial[k] = name
	}
	if trivial != nil {
		a.Category = CategoryTrivial
		a.TrivialRules = trivial
		return a
	}

	for _, k := range a.ConflictingProperties {
		oc, tc := ours[k], theirs[k]
		if oc.deleted || tc.deleted || !oc.value.IsNumeric() || !tc.value.IsNumeric() {
			a.Category = CategoryComplex
			return a
		}
	}
	a.Category = CategoryNumeric
	return a
}

// Suggest fills in AutoResolvable and SuggestedResolution from the
// analysis of c. Additive conflicts suggest a union; trivial and numeric
// conflicts are auto-resolvable without a fixed suggestion.
func (r *Resolver) Suggest(c *MergeConflict) {
	a := r.Analyze(c)
	c.AutoResolvable = a.Category != CategoryComplex
	c.SuggestedResolution = ""
	if a.Category == CategoryAdditive {
		c.SuggestedResolution = StrategyUnion
	}
}

// conflicting returns the keys both sides changed to different values.
func (r *Resolver) conflicting(ours, theirs changeSet) []string {
	var out []string
	for k, oc := range ours {
		if tc, ok := theirs[k]; ok && !oc.equal(tc, r.tolerance) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Resolver) resolveAuto(c *MergeConflict) ResolvedObject {
	if c.AutoResolvable {
		switch c.SuggestedResolution {
		case StrategyOurs, StrategyTheirs, StrategyUnion:
			return r.Resolve(c, c.SuggestedResolution)
		}
	}

	a := r.Analyze(c)
	switch a.Category {
	case CategoryAdditive:
		return r.resolveUnion(c)
	case CategoryTrivial:
		return r.resolveWith(c, a, AutoTrivial, func(_ string, _, theirs change) (change, error) {
			return theirs, nil
		})
	case CategoryNumeric:
		return r.resolveWith(c, a, AutoNumeric, func(key string, ours, theirs change) (change, error) {
			avg, err := average(ours.value, theirs.value)
			if err != nil {
				return change{}, fmt.Errorf("%s: %w", key, err)
			}
			return change{value: avg}, nil
		})
	}
	return ResolvedObject{ResolutionType: ManualRequired, ConflictInfo: conflictInfo(c, a)}
}

// resolveUnion merges both change sets onto base, leaving true conflicts
// at the base value. It falls back to OURS when the union cannot be built.
func (r *Resolver) resolveUnion(c *MergeConflict) ResolvedObject {
	merged, err := r.union(c, nil)
	if err != nil {
		r.logger.Debug("union resolution failed, keeping ours", "object", c.ObjectID, "error", err)
		return r.Resolve(c, StrategyOurs)
	}
	return ResolvedObject{ObjectData: merged, ResolutionType: Union}
}

// resolveWith is a union in which every conflicting key is settled by pick.
func (r *Resolver) resolveWith(c *MergeConflict, a Analysis, rt ResolutionType, pick func(key string, ours, theirs change) (change, error)) ResolvedObject {
	merged, err := r.union(c, pick)
	if err != nil {
		r.logger.Debug("automatic resolution failed", "object", c.ObjectID, "resolution", string(rt), "error", err)
		return ResolvedObject{ResolutionType: ManualRequired, ConflictInfo: conflictInfo(c, a)}
	}
	return ResolvedObject{ObjectData: merged, ResolutionType: rt}
}

// union starts from base (or ours), applies our changes the other side
// agrees with or leaves alone, then their changes we did not touch. pick,
// when set, settles the keys both sides changed differently.
func (r *Resolver) union(c *MergeConflict, pick func(key string, ours, theirs change) (change, error)) (*object.ObjectData, error) {
	start := c.Base
	if start == nil {
		start = c.Ours
	}
	if start == nil {
		return nil, fmt.Errorf("no base and no ours version")
	}
	merged := start.Clone()

	ours := changes(c.Base, c.Ours, r.tolerance)
	theirs := changes(c.Base, c.Theirs, r.tolerance)

	for _, k := range ours.keys() {
		oc := ours[k]
		tc, inTheirs := theirs[k]
		switch {
		case !inTheirs || oc.equal(tc, r.tolerance):
			if err := apply(merged, k, oc); err != nil {
				return nil, err
			}
		case pick != nil:
			resolved, err := pick(k, oc, tc)
			if err != nil {
				return nil, err
			}
			if err := apply(merged, k, resolved); err != nil {
				return nil, err
			}
		}
	}
	for _, k := range theirs.keys() {
		if _, inOurs := ours[k]; inOurs {
			continue
		}
		if err := apply(merged, k, theirs[k]); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// average returns the mean of two numbers. Two ints average with
// truncating integer division without overflowing.
func average(a, b object.Value) (object.Value, error) {
	ai, aInt := a.AsInt()
	bi, bInt := b.AsInt()
	if aInt && bInt {
		if (ai < 0) != (bi < 0) {
			return object.Int((ai + bi) / 2), nil
		}
		return object.Int(ai/2 + bi/2 + (ai%2+bi%2)/2), nil
	}
	af, ok1 := a.Number()
	bf, ok2 := b.Number()
	if !ok1 || !ok2 {
		return object.Value{}, fmt.Errorf("cannot average %s and %s", a.Kind(), b.Kind())
	}
	return object.Float((af + bf) / 2), nil
}

func conflictInfo(c *MergeConflict, a Analysis) *ConflictInfo {
	props := a.ConflictingProperties
	if props == nil {
		props = []string{}
	}
	return &ConflictInfo{
		ObjectID:              c.ObjectID,
		ConflictType:          c.Type,
		Category:              a.Category,
		ConflictingProperties: props,
		OurChanges:            a.OurChanges,
		TheirChanges:          a.TheirChanges,
		HasBase:               a.HasBase,
	}
}
