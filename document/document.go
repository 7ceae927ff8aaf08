package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/tsawler/pdfrev/core"
)

// PDFVersion represents a PDF version
type PDFVersion struct {
	Major int
	Minor int
}

// String returns the version as a string (e.g., "1.7")
func (v PDFVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less reports whether v is older than o.
func (v PDFVersion) Less(o PDFVersion) bool {
	return v.Major < o.Major || (v.Major == o.Major && v.Minor < o.Minor)
}

// ParseVersion parses "major.minor".
func ParseVersion(s string) (PDFVersion, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return PDFVersion{}, fmt.Errorf("invalid version format: %q", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return PDFVersion{Major: major, Minor: minor}, nil
}

var (
	versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)`)
	headerPattern  = regexp.MustCompile(`%PDF-(\d+)\.(\d+)`)
	defaultVersion = PDFVersion{Major: 1, Minor: 4}
)

// Document is an open PDF document: a chain of sections over a source, an
// in-memory edit section and an optional local overlay.
//
// A Document is not safe for concurrent use.
type Document struct {
	file    *os.File // owned when opened by path
	src     io.ReaderAt
	size    int64
	version PDFVersion

	chain chain
	pins  map[*Pin]struct{}

	allowRepair bool
	repaired    bool
	repairing   bool

	logger *log.Logger
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger used for repair and save diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(d *Document) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRepair enables or disables automatic repair of damaged files
// (enabled by default).
func WithRepair(enabled bool) Option {
	return func(d *Document) {
		d.allowRepair = enabled
	}
}

func newDocument(opts []Option) *Document {
	d := &Document{
		pins:        make(map[*Pin]struct{}),
		allowRepair: true,
		logger:      log.New(io.Discard),
		version:     defaultVersion,
	}
	d.chain.reset()
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// New creates an empty document holding only the free head of the free list.
// Objects are added with Create and the catalog is set through
// MutableTrailer.
func New(opts ...Option) *Document {
	d := newDocument(opts)
	d.version = PDFVersion{Major: 1, Minor: 7}
	base := newSection(core.Dict{"Size": core.Int(1)})
	*base.ensure(0) = Entry{Kind: KindFree, Generation: core.MaxGeneration}
	d.chain.sections = []*Section{base}
	return d
}

// NewDocument reads the document stored in the first size bytes of r.
// Damaged cross-reference data is repaired unless WithRepair(false) is given.
func NewDocument(r io.ReaderAt, size int64, opts ...Option) (*Document, error) {
	d := newDocument(opts)
	d.src = r
	d.size = size
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

// Open opens a PDF file and returns a Document
func Open(filename string, opts ...Option) (*Document, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	d, err := NewDocument(file, info.Size(), opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	d.file = file
	return d, nil
}

// Close closes the file opened by Open. Cached values are released.
func (d *Document) Close() error {
	d.chain.reset()
	d.src = nil
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}

// parseHeader finds the %PDF-x.y header within the first kilobyte. Bytes
// before the header shift every offset in the file, so the source is
// re-based onto the header.
func (d *Document) parseHeader() error {
	n := int64(1024)
	if d.size < n {
		n = d.size
	}
	buf := make([]byte, n)
	read, err := d.src.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return core.IOError("read header", err)
	}
	buf = buf[:read]

	loc := headerPattern.FindSubmatchIndex(buf)
	if loc == nil {
		return core.FormatErrorf("missing %%PDF header")
	}
	major, _ := strconv.Atoi(string(buf[loc[2]:loc[3]]))
	minor, _ := strconv.Atoi(string(buf[loc[4]:loc[5]]))
	d.version = PDFVersion{Major: major, Minor: minor}

	if start := int64(loc[0]); start > 0 {
		d.logger.Debug("junk before header", "bytes", start)
		d.src = io.NewSectionReader(d.src, start, d.size-start)
		d.size -= start
	}
	return nil
}

// Version returns the PDF version
func (d *Document) Version() PDFVersion {
	return d.version
}

// FileSize returns the size of the source in bytes
func (d *Document) FileSize() int64 {
	return d.size
}

// Repaired reports whether the chain was rebuilt by the repair engine.
func (d *Document) Repaired() bool {
	return d.repaired
}

// Trailer returns the trailer dictionary at the newest version. It must not
// be modified; use MutableTrailer.
func (d *Document) Trailer() core.Dict {
	return d.chain.top().Trailer
}

// MutableTrailer returns the trailer of the edit section, creating the
// section if needed.
func (d *Document) MutableTrailer() core.Dict {
	return d.editSection().Trailer
}

// Encrypted reports whether the trailer names an encryption dictionary.
// Values of encrypted documents are returned as stored, not decrypted.
func (d *Document) Encrypted() bool {
	return d.Trailer().Has("Encrypt")
}

// GetCatalog returns the document catalog (root object)
func (d *Document) GetCatalog() (core.Dict, error) {
	return catalogOf(d, d.Trailer())
}

// GetInfo returns the document info dictionary (metadata), or nil.
func (d *Document) GetInfo() (core.Dict, error) {
	return infoOf(d, d.Trailer())
}

// NumObjects returns one past the highest object number in use at the
// newest version.
func (d *Document) NumObjects() int {
	return d.chain.bound(d.chain.topIndex(), true)
}

// Versions returns the number of sections in the chain. Version 0 is the
// base file; an unsaved edit section counts as the newest version.
func (d *Document) Versions() int {
	return len(d.chain.sections)
}

// Sections returns the chain, oldest first. The sections must not be modified.
func (d *Document) Sections() []*Section {
	return d.chain.sections
}

// ClearCache drops every cached value of committed sections.
// Useful for freeing memory when processing large PDFs
func (d *Document) ClearCache() {
	for _, s := range d.chain.sections {
		if !s.Committed() || s.recovered {
			continue
		}
		for i := range s.entries {
			e := &s.entries[i]
			if e.Kind == KindNormal || e.Kind == KindCompressed {
				e.value = nil
				e.objstm = nil
			}
		}
	}
}

type objectGetter interface {
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

func catalogOf(g objectGetter, trailer core.Dict) (core.Dict, error) {
	ref, ok := trailer.GetIndirectRef("Root")
	if !ok {
		return nil, core.FormatErrorf("trailer missing /Root entry")
	}
	obj, err := g.ResolveReference(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog: %w", err)
	}
	catalog, ok := obj.(core.Dict)
	if !ok {
		return nil, core.FormatErrorf("catalog is not a dictionary: %T", obj)
	}
	return catalog, nil
}

func infoOf(g objectGetter, trailer core.Dict) (core.Dict, error) {
	ref, ok := trailer.GetIndirectRef("Info")
	if !ok {
		return nil, nil // Info is optional
	}
	obj, err := g.ResolveReference(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve info: %w", err)
	}
	info, _ := obj.(core.Dict)
	return info, nil
}

// readAll returns the whole source.
func (d *Document) readAll() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(d.size))
	if _, err := io.Copy(&buf, io.NewSectionReader(d.src, 0, d.size)); err != nil {
		return nil, core.IOError("read source", err)
	}
	return buf.Bytes(), nil
}
