package validate

import (
	"sort"
	"strings"

	"github.com/tsawler/pdfrev/core"
)

// Permission levels of a DocMDP transform, from most to least restrictive.
const (
	PermNone        = 0 // no document-level restriction
	PermNoChanges   = 1
	PermFormFill    = 2 // fill in fields and sign
	PermAnnotations = 3 // form filling, signing and annotations
)

// LockSpec is the combined locking policy of the signatures of a version.
// A field is locked when All is set and its name is not in Exclude, or when
// its name is in Include. Include is only used when All is false.
type LockSpec struct {
	Permissions int
	All         bool
	Include     map[string]bool
	Exclude     map[string]bool
}

// LockAll locks every field.
func LockAll() LockSpec {
	return LockSpec{All: true}
}

// LockInclude locks the named fields.
func LockInclude(names ...string) LockSpec {
	return LockSpec{Include: toSet(names)}
}

// LockExclude locks every field except the named ones.
func LockExclude(names ...string) LockSpec {
	return LockSpec{All: true, Exclude: toSet(names)}
}

// LockPermissions restricts the document to permission level p.
func LockPermissions(p int) LockSpec {
	return LockSpec{Permissions: p}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// Merge returns the union of both policies: a field locked by either stays
// locked, and the permission is the most restrictive one set.
func (l LockSpec) Merge(o LockSpec) LockSpec {
	out := LockSpec{Permissions: mergePermissions(l.Permissions, o.Permissions)}
	switch {
	case l.All && o.All:
		out.All = true
		out.Exclude = make(map[string]bool)
		for n := range l.Exclude {
			if o.Exclude[n] {
				out.Exclude[n] = true
			}
		}
	case l.All || o.All:
		cofinite, finite := l, o
		if o.All {
			cofinite, finite = o, l
		}
		out.All = true
		out.Exclude = make(map[string]bool)
		for n := range cofinite.Exclude {
			if !finite.Include[n] {
				out.Exclude[n] = true
			}
		}
	default:
		out.Include = make(map[string]bool, len(l.Include)+len(o.Include))
		for n := range l.Include {
			out.Include[n] = true
		}
		for n := range o.Include {
			out.Include[n] = true
		}
	}
	return out
}

func mergePermissions(a, b int) int {
	switch {
	case a == PermNone:
		return b
	case b == PermNone:
		return a
	}
	return min(a, b)
}

// Empty reports whether the policy restricts nothing.
func (l LockSpec) Empty() bool {
	return l.Permissions == PermNone && !l.All && len(l.Include) == 0
}

// Locked reports whether the field with the fully qualified name is locked.
// Naming a field in Include or Exclude covers its descendants too.
func (l LockSpec) Locked(name string) bool {
	for n := name; ; {
		if l.All && l.Exclude[n] {
			return false
		}
		if !l.All && l.Include[n] {
			return true
		}
		i := strings.LastIndexByte(n, '.')
		if i < 0 {
			return l.All
		}
		n = n[:i]
	}
}

// String describes the policy.
func (l LockSpec) String() string {
	var b strings.Builder
	switch {
	case l.All && len(l.Exclude) == 0:
		b.WriteString("all fields")
	case l.All:
		b.WriteString("all fields except " + strings.Join(sortedKeys(l.Exclude), ", "))
	case len(l.Include) > 0:
		b.WriteString("fields " + strings.Join(sortedKeys(l.Include), ", "))
	default:
		b.WriteString("no fields")
	}
	if l.Permissions != PermNone {
		b.WriteString("; permission ")
		b.WriteByte(byte('0' + l.Permissions))
	}
	return b.String()
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lockFromDict reads a /Lock dictionary or FieldMDP transform parameters.
func lockFromDict(st *state, d core.Dict) (LockSpec, error) {
	var spec LockSpec
	action, _ := d.GetName("Action")
	switch action {
	case "All":
		spec = LockAll()
	case "Include", "Exclude":
		names, err := fieldNames(st, d.Get("Fields"))
		if err != nil {
			return LockSpec{}, err
		}
		if action == "Include" {
			spec = LockInclude(names...)
		} else {
			spec = LockExclude(names...)
		}
	}
	if p, ok := d.GetInt("P"); ok && p >= PermNoChanges && p <= PermAnnotations {
		spec.Permissions = int(p)
	}
	return spec, nil
}

func fieldNames(st *state, obj core.Object) ([]string, error) {
	obj, err := st.resolve(obj)
	if err != nil {
		return nil, err
	}
	arr, _ := obj.(core.Array)
	names := make([]string, 0, len(arr))
	for _, elem := range arr {
		elem, err := st.resolve(elem)
		if err != nil {
			return nil, err
		}
		if s, ok := elem.(core.String); ok {
			names = append(names, core.DecodeTextString(s))
		}
	}
	return names, nil
}

// referenceLocks folds the /Reference transforms of a signature value.
func referenceLocks(st *state, sig core.Dict) (LockSpec, error) {
	var spec LockSpec
	obj, err := st.resolve(sig.Get("Reference"))
	if err != nil {
		return spec, err
	}
	refs, _ := obj.(core.Array)
	for _, elem := range refs {
		elem, err := st.resolve(elem)
		if err != nil {
			return spec, err
		}
		sigRef, ok := elem.(core.Dict)
		if !ok {
			continue
		}
		params, err := st.resolve(sigRef.Get("TransformParams"))
		if err != nil {
			return spec, err
		}
		pd, _ := params.(core.Dict)
		method, _ := sigRef.GetName("TransformMethod")
		switch method {
		case "DocMDP":
			p := PermFormFill
			if v, ok := pd.GetInt("P"); ok && v >= PermNoChanges && v <= PermAnnotations {
				p = int(v)
			}
			spec = spec.Merge(LockPermissions(p))
		case "FieldMDP":
			frag, err := lockFromDict(st, pd)
			if err != nil {
				return spec, err
			}
			spec = spec.Merge(frag)
		}
	}
	return spec, nil
}

// policyAt folds the locking policy of every signed signature field and of
// the catalog's /Perms /DocMDP entry.
func policyAt(st *state, fields []*Field) (LockSpec, error) {
	var spec LockSpec
	for _, f := range fields {
		if f.Type != "Sig" {
			continue
		}
		dict, err := st.dict(f.Num)
		if err != nil {
			return spec, err
		}
		sig, err := st.resolve(dict.Get("V"))
		if err != nil {
			return spec, err
		}
		sd, ok := sig.(core.Dict)
		if !ok {
			continue
		}
		lock, err := st.resolve(dict.Get("Lock"))
		if err != nil {
			return spec, err
		}
		if ld, ok := lock.(core.Dict); ok {
			frag, err := lockFromDict(st, ld)
			if err != nil {
				return spec, err
			}
			spec = spec.Merge(frag)
		}
		frag, err := referenceLocks(st, sd)
		if err != nil {
			return spec, err
		}
		spec = spec.Merge(frag)
	}

	perms, err := st.resolve(st.catalog.Get("Perms"))
	if err != nil {
		return spec, err
	}
	if pd, ok := perms.(core.Dict); ok {
		sig, err := st.resolve(pd.Get("DocMDP"))
		if err != nil {
			return spec, err
		}
		if sd, ok := sig.(core.Dict); ok {
			frag, err := referenceLocks(st, sd)
			if err != nil {
				return spec, err
			}
			spec = spec.Merge(frag)
		}
	}
	return spec, nil
}
