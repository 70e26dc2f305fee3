// Package reconcile compares and safely merges job configuration snapshots.
//
// Every key of a configuration belongs to one of three classes. Unsafe keys
// (the default) must match between two snapshots, safe keys may be adopted from
// the newer snapshot, and skipped keys are ignored entirely. Struct fields
// declare their class with a `reconcile:"safe"` or `reconcile:"skip"` tag and
// are keyed by their yaml name. Maps with string keys are supported as opaque
// attribute bags, classified through WithSafeKeys and WithSkipKeys.
package reconcile

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	autogen "github.com/goliatone/go-autogen"
)

// TagName is the struct tag holding a field's key class.
const TagName = "reconcile"

// Class is the reconciliation class of a configuration key.
type Class int

const (
	ClassUnsafe Class = iota
	ClassSafe
	ClassSkip
)

func (c Class) String() string {
	switch c {
	case ClassSafe:
		return "safe"
	case ClassSkip:
		return "skip"
	default:
		return "unsafe"
	}
}

// Diff lists the keys on which two configurations disagree.
type Diff struct {
	OnlyOld []string `json:"only_old,omitempty"`
	OnlyNew []string `json:"only_new,omitempty"`
	Changed []string `json:"changed,omitempty"`
}

// Same reports whether no key differs.
func (d Diff) Same() bool {
	return len(d.OnlyOld) == 0 && len(d.OnlyNew) == 0 && len(d.Changed) == 0
}

// Keys returns every differing key, sorted.
func (d Diff) Keys() []string {
	keys := make([]string, 0, len(d.OnlyOld)+len(d.OnlyNew)+len(d.Changed))
	keys = append(keys, d.OnlyOld...)
	keys = append(keys, d.OnlyNew...)
	keys = append(keys, d.Changed...)
	sort.Strings(keys)
	return keys
}

func (d Diff) String() string {
	if d.Same() {
		return "no differences"
	}
	var parts []string
	if len(d.OnlyOld) > 0 {
		parts = append(parts, "only in old: "+strings.Join(d.OnlyOld, ", "))
	}
	if len(d.OnlyNew) > 0 {
		parts = append(parts, "only in new: "+strings.Join(d.OnlyNew, ", "))
	}
	if len(d.Changed) > 0 {
		parts = append(parts, "changed: "+strings.Join(d.Changed, ", "))
	}
	return strings.Join(parts, "; ")
}

// Option customizes a comparison or merge.
type Option func(*options)

type options struct {
	skip   map[string]struct{}
	safe   map[string]struct{}
	logger autogen.Logger
}

// WithSkipKeys excludes keys from comparison, in addition to struct tags.
func WithSkipKeys(keys ...string) Option {
	return func(o *options) {
		for _, k := range keys {
			o.skip[k] = struct{}{}
		}
	}
}

// WithSafeKeys marks keys as safe to adopt, in addition to struct tags.
func WithSafeKeys(keys ...string) Option {
	return func(o *options) {
		for _, k := range keys {
			o.safe[k] = struct{}{}
		}
	}
}

// WithLogger logs key updates during Merge.
func WithLogger(logger autogen.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		skip:   make(map[string]struct{}),
		safe:   make(map[string]struct{}),
		logger: autogen.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.logger = autogen.NormalizeLogger(o.logger)
	return o
}

func (o *options) classify(key string, tagged Class) Class {
	if _, ok := o.skip[key]; ok {
		return ClassSkip
	}
	if tagged == ClassSkip {
		return ClassSkip
	}
	if _, ok := o.safe[key]; ok {
		return ClassSafe
	}
	return tagged
}

// Compare reports whether old and new agree on every non-skipped key. Both
// values must share a type: a struct, a pointer to a struct, or a map keyed by
// strings.
func Compare(old, new any, opts ...Option) (bool, Diff, error) {
	o := buildOptions(opts)
	oldSet, newSet, err := entrySets(old, new, o)
	if err != nil {
		return false, Diff{}, err
	}
	d := diffSets(oldSet, newSet)
	return d.Same(), d, nil
}

// Changes is the typed form of Compare.
func Changes[T any](old, new T, opts ...Option) (Diff, error) {
	_, d, err := Compare(old, new, opts...)
	return d, err
}

// Check reports the keys that differ between old and new without changing
// either. It fails with autogen.ErrConfigInconsistent when any differing key
// is not safe.
func Check(old, new any, opts ...Option) (Diff, error) {
	o := buildOptions(opts)
	oldSet, newSet, err := entrySets(old, new, o)
	if err != nil {
		return Diff{}, err
	}
	d := diffSets(oldSet, newSet)
	return d, checkSafe(d, oldSet, newSet)
}

// Merge copies every safe differing key from new into old and reports whether
// anything changed. It fails with autogen.ErrConfigInconsistent, leaving old
// untouched, when any differing key is not safe. old must be a pointer to a
// struct, a pointer to a map, or a non-nil map.
func Merge(old, new any, opts ...Option) (bool, error) {
	o := buildOptions(opts)
	oldSet, newSet, err := entrySets(old, new, o)
	if err != nil {
		return false, err
	}
	d := diffSets(oldSet, newSet)
	if d.Same() {
		return false, nil
	}

	o.logger.Info("key update: %v from old doesn't match %v from new", append(d.OnlyOld, d.Changed...), append(d.OnlyNew, d.Changed...))
	if err := checkSafe(d, oldSet, newSet); err != nil {
		return false, err
	}

	target, err := mergeTarget(old)
	if err != nil {
		return false, err
	}
	for _, key := range d.Keys() {
		o.logger.Info("keeping %s from the newer configuration", key)
		if err := target.assign(key, oldSet, newSet); err != nil {
			return false, err
		}
	}
	return true, nil
}

func checkSafe(d Diff, oldSet, newSet *entrySet) error {
	var unsafe []string
	for _, key := range d.Keys() {
		cls := ClassUnsafe
		if e, ok := oldSet.entries[key]; ok {
			cls = e.class
		} else if e, ok := newSet.entries[key]; ok {
			cls = e.class
		}
		if cls != ClassSafe {
			unsafe = append(unsafe, key)
		}
	}
	if len(unsafe) == 0 {
		return nil
	}
	return autogen.NewError(autogen.ErrConfigInconsistent, "", nil, map[string]any{
		"unsafe_keys": unsafe,
		"only_old":    d.OnlyOld,
		"only_new":    d.OnlyNew,
		"changed":     d.Changed,
	})
}

// MergeInto is the typed form of Merge.
func MergeInto[T any](old *T, new T, opts ...Option) (bool, error) {
	if old == nil {
		return false, invalid("merge target is nil", nil)
	}
	return Merge(old, new, opts...)
}

func diffSets(oldSet, newSet *entrySet) Diff {
	var d Diff
	for key := range newSet.entries {
		if _, ok := oldSet.entries[key]; !ok {
			d.OnlyNew = append(d.OnlyNew, key)
		}
	}
	for key, oe := range oldSet.entries {
		ne, ok := newSet.entries[key]
		if !ok {
			d.OnlyOld = append(d.OnlyOld, key)
			continue
		}
		if !reflect.DeepEqual(oe.value.Interface(), ne.value.Interface()) {
			d.Changed = append(d.Changed, key)
		}
	}
	sort.Strings(d.OnlyOld)
	sort.Strings(d.OnlyNew)
	sort.Strings(d.Changed)
	return d
}

func invalid(msg string, md map[string]any) error {
	return autogen.NewError(autogen.ErrInvalidConfig, msg, nil, md)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
