package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// memFile is an in-memory Output that can also be read back.
type memFile struct {
	data []byte
	pos  int64

	failAfter int // fail writes once this many bytes were written, when > 0
	written   int
}

func newMemFile(content []byte) *memFile {
	return &memFile{data: append([]byte(nil), content...)}
}

func (m *memFile) Write(p []byte) (int, error) {
	n := len(p)
	var err error
	if m.failAfter > 0 && m.written+n > m.failAfter {
		n = m.failAfter - m.written
		err = errors.New("disk full")
	}
	end := m.pos + int64(n)
	if end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	copy(m.data[m.pos:], p[:n])
	m.pos = end
	m.written += n
	return n, err
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.data)) + offset
	}
	return m.pos, nil
}

func (m *memFile) Truncate(size int64) error {
	if size < int64(len(m.data)) {
		m.data = m.data[:size]
	}
	return nil
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFile) Bytes() []byte {
	return m.data
}

// writeOnly hides ReadAt so a save cannot rebind to the output.
type writeOnly struct {
	f *memFile
}

func (w writeOnly) Write(p []byte) (int, error)                  { return w.f.Write(p) }
func (w writeOnly) Seek(offset int64, whence int) (int64, error) { return w.f.Seek(offset, whence) }
func (w writeOnly) Truncate(size int64) error                    { return w.f.Truncate(size) }

// assemble builds a single-section PDF whose objects are numbered from 1 in
// the order given. trailer holds extra trailer entries.
func assemble(objects []string, trailer string) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d %s >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, trailer, xref)
	return b.Bytes()
}

// samplePDF is a two-page document with an unreachable object (6) and two
// identical font dictionaries (7, 8).
var samplePDF = assemble([]string{
	"<< /Type /Catalog /Pages 2 0 R >>",
	"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
	"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 7 0 R >> >> /Contents 5 0 R >>",
	"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 8 0 R >> >> >>",
	"<< /Length 15 >>\nstream\nBT /F1 12 Tf ET\nendstream",
	"<< /Orphan true >>",
	"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	"<< /Producer (pdfrev test) >>",
}, "/Root 1 0 R /Info 9 0 R")

func openBytes(t *testing.T, data []byte, opts ...Option) *Document {
	t.Helper()
	doc, err := NewDocument(bytes.NewReader(data), int64(len(data)), opts...)
	require.NoError(t, err)
	return doc
}

func openFile(t *testing.T, f *memFile, opts ...Option) *Document {
	t.Helper()
	doc, err := NewDocument(f, int64(len(f.Bytes())), opts...)
	require.NoError(t, err)
	return doc
}
