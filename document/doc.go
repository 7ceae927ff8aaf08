// Package document stores the indirect objects of a PDF file as a chain of
// versions and writes them back.
//
// # Opening Documents
//
// Use [Open] for a file on disk or [NewDocument] for any io.ReaderAt:
//
//	doc, err := document.Open("form.pdf", document.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer doc.Close()
//
// Every cross-reference section reachable through /Prev becomes one
// [Section] of the chain, oldest first. Version 0 is the original file and
// each incremental update adds one version. Damaged indexes are rebuilt by
// scanning the file for object definitions (see [Document.Repair]).
//
// # Reading
//
//   - Get(num) - the object at the newest version
//   - Resolve(obj) - follow an indirect reference; free objects are null
//   - View(v) - a read-only view of an older version
//   - ChangedBetween(a, b) - numbers redefined between two versions
//
// Values returned by Get are shared with the store and must not be modified.
//
// # Editing
//
// Edits go to an in-memory edit section on top of the chain:
//
//	page, err := doc.MutableDict(4)
//	page["Rotate"] = core.Int(90)
//	ref, err := doc.Create(core.Dict{"Type": core.Name("Annot")})
//
// BeginLocal and EndLocal bracket scratch edits that are visible to Get but
// never saved. A [Pin] holds a reference from outside the object graph; pins
// are kept alive by garbage collection and follow renumbering.
//
// # Saving
//
// [Document.Save] either appends the edit section to the file (incremental)
// or rewrites the whole document, optionally collecting garbage, merging
// duplicates, renumbering and packing objects into object streams. Pending
// signatures created with [Document.AddSignature] are filled in after the
// bytes are laid out.
//
// A Document is not safe for concurrent use.
package document
