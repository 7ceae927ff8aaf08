// Package core provides the PDF object model and the byte-level codecs the
// object store is built on.
//
// # Object Types
//
// PDF defines eight basic object types, all implemented as types satisfying the
// Object interface:
//
//   - [Null] - represents the PDF null object
//   - [Bool] - represents PDF boolean values (true/false)
//   - [Int] - represents PDF integers
//   - [Real] - represents PDF real numbers (floating point)
//   - [String] - represents PDF string objects (literal or hexadecimal)
//   - [Name] - represents PDF name objects (e.g., /Type, /Font)
//   - [Array] - represents PDF arrays
//   - [Dict] - represents PDF dictionaries
//
// Additionally, [Stream] represents a PDF stream (dictionary + binary data),
// and [IndirectRef] represents a reference to an indirect object and doubles
// as the object identifier. [Clone], [Equal] and [Walk] copy, compare and
// traverse values without following references.
//
// # Parsing
//
// The [Parser] type handles parsing PDF syntax from an io.Reader. It can parse
// individual objects or complete indirect object definitions. A lenient mode
// used during repair reads stream data up to the next endstream keyword.
//
// # Writing
//
// [AppendObject] and [Serialize] produce deterministic syntax: dictionary
// keys are sorted, so equal objects serialize to equal bytes.
// [AppendXRefTable], [NewXRefStream] and [AppendTrailer] write the index of
// a saved file.
//
// # Cross-Reference Sections
//
// The [XRefParser] type reads classic tables, cross-reference streams and
// hybrid files, and follows /Prev chains with [XRefParser.ParseAllXRefs].
//
// # Object Streams
//
// [ObjectStream] extracts members of an existing container one at a time;
// [ObjectStreamBuilder] packs objects into a new one.
//
// # Errors
//
// Every failure matches one of the sentinel kinds ([ErrFormat], [ErrRange],
// [ErrNotFound] and so on) with errors.Is. [ObjectError] adds the object
// number and operation.
package core
