// Package resolver expands indirect references of a PDF object graph.
//
// PDF documents use indirect references (e.g., "5 0 R") to refer to objects
// stored elsewhere in the file. This package follows them against any
// [ObjectReader], typically a document or a read-only view of an older
// version:
//
//	r := resolver.NewResolver(doc)
//	obj, err := r.Resolve(ref)
//
// # Deep Resolution
//
// ResolveDeep returns a copy of a dictionary or array with every reachable
// reference replaced by its target:
//
//	resolved, err := r.ResolveDeep(obj)
//
// Object graphs are cyclic (pages point to their parent), so a reference to
// an object that is still being expanded is left in place. Nesting is
// bounded; exceeding the bound fails with core.ErrSecurityLimit:
//
//	r := resolver.NewResolver(doc, resolver.WithMaxDepth(50))
package resolver
