// Package pages walks the page tree of a document.
//
// [Walk] flattens the tree below the catalog's /Pages into document order
// while keeping each page's object reference, which callers comparing
// revisions need:
//
//	list, err := pages.Walk(ctx, doc, catalog)
//	for _, p := range list {
//		annots, holder, _ := p.Annots()
//		...
//	}
//
// Any object source with a Get(num) method works, so older revisions are
// walked through a document view. Nodes reached twice are visited once.
//
// # Inheritance
//
// Resources, MediaBox, CropBox and Rotate may be set on an ancestor /Pages
// node. [Page.Inherited] looks them up the way a viewer does.
package pages
