package validate

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsawler/pdfrev/core"
	"github.com/tsawler/pdfrev/document"
)

// mockSource is an in-memory version of a document.
type mockSource struct {
	objects map[int]core.Object
	trailer core.Dict
	failing map[int]bool
}

func newMockSource(objects map[int]core.Object) *mockSource {
	return &mockSource{
		objects: objects,
		trailer: core.Dict{"Root": core.IndirectRef{Number: 1}},
		failing: make(map[int]bool),
	}
}

func (m *mockSource) Get(num int) (core.Object, error) {
	if m.failing[num] {
		return nil, core.IOError("read", io.ErrUnexpectedEOF)
	}
	obj, ok := m.objects[num]
	if !ok {
		return nil, fmt.Errorf("object %d: %w", num, core.ErrNotFound)
	}
	return obj, nil
}

func (m *mockSource) Trailer() core.Dict {
	return m.trailer
}

func (m *mockSource) GetCatalog() (core.Dict, error) {
	obj, err := m.Get(1)
	if err != nil {
		return nil, err
	}
	d, _ := obj.(core.Dict)
	return d, nil
}

// memFile is an in-memory save target that can be read back.
type memFile struct {
	data []byte
	pos  int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	copy(m.data[m.pos:], p)
	m.pos = end
	return len(p), nil
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

// assemble builds a single-section file whose objects are numbered from 1.
func assemble(objects []string, trailer string) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
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

// Object numbers of the signed form.
const (
	numCatalog  = 1
	numPage     = 3
	numForm     = 4
	numName     = 5
	numCity     = 6
	numSig      = 7
	numNameAP   = 8
	numCityAP   = 9
	numSigValue = 10
	numLock     = 11
	numInfo     = 12
	numProcSet  = 13
)

// signedForm is a one-page form with text fields "name" and "city" and a
// signature field "sig" whose value carries reference and whose field
// carries lock.
func signedForm(lock, reference string) []byte {
	sigField := "<< /FT /Sig /T (sig) /Subtype /Widget /P 3 0 R /V 10 0 R >>"
	if lock != "" {
		sigField = "<< /FT /Sig /T (sig) /Subtype /Widget /P 3 0 R /V 10 0 R /Lock 11 0 R >>"
	}
	if lock == "" {
		lock = "<< >>"
	}
	return assemble([]string{
		"<< /Type /Catalog /Pages 2 0 R /AcroForm 4 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources 13 0 R /Annots [5 0 R 6 0 R 7 0 R] >>",
		"<< /Fields [5 0 R 6 0 R 7 0 R] /SigFlags 3 >>",
		"<< /FT /Tx /T (name) /V (Alice) /Subtype /Widget /P 3 0 R /AP << /N 8 0 R >> >>",
		"<< /FT /Tx /T (city) /V (Paris) /Subtype /Widget /P 3 0 R /AP << /N 9 0 R >> >>",
		sigField,
		"<< /Length 5 >>\nstream\nAlice\nendstream",
		"<< /Length 5 >>\nstream\nParis\nendstream",
		"<< /Type /Sig /Filter /Adobe.PPKLite /Contents <00> /ByteRange [0 0 0 0] " + reference + " >>",
		lock,
		"<< /Producer (pdfrev test) >>",
		"<< /ProcSet [/PDF /Text] >>",
	}, "/Root 1 0 R /Info 12 0 R")
}

func docMDP(p int) string {
	return fmt.Sprintf("/Reference [<< /Type /SigRef /TransformMethod /DocMDP /TransformParams << /Type /TransformParams /P %d /V /1.2 >> >>]", p)
}

const lockName = "<< /Type /SigFieldLock /Action /Include /Fields [(name)] >>"

func openForm(t *testing.T, data []byte) (*document.Document, *memFile) {
	t.Helper()
	f := &memFile{data: data}
	doc, err := document.NewDocument(f, int64(len(data)))
	require.NoError(t, err)
	return doc, f
}

func mutableDict(t *testing.T, doc *document.Document, num int) core.Dict {
	t.Helper()
	d, err := doc.MutableDict(num)
	require.NoError(t, err)
	return d
}

func appearance(text string) *core.Stream {
	return &core.Stream{
		Dict: core.Dict{"Length": core.Int(len(text))},
		Data: []byte(text),
	}
}

func rejectedNums(res *Result) []int {
	nums := make([]int, 0, len(res.Rejected))
	for _, r := range res.Rejected {
		nums = append(nums, r.Num)
	}
	return nums
}
