package document

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/tsawler/pdfrev/core"
	"github.com/tsawler/pdfrev/internal/filters"
)

// Signer produces the signature stored in a signature dictionary's
// /Contents.
type Signer interface {
	// Size returns the largest signature Sign returns, in bytes.
	Size() int
	// Sign signs the bytes covered by /ByteRange.
	Sign(ctx context.Context, content io.Reader) ([]byte, error)
}

// pendingSignature is a signature dictionary waiting for the next save.
type pendingSignature struct {
	pin    *Pin
	signer Signer
}

// byteRangePlaceholder reserves room for the largest offsets a /ByteRange
// can hold.
const byteRangePlaceholder = 9999999999

// AddSignature creates a signature dictionary and schedules it for signing
// by the next save. Entries of sig are copied over the defaults; /ByteRange
// and /Contents are always placeholders. The caller links the returned
// reference from a signature field's /V.
func (d *Document) AddSignature(sig core.Dict, signer Signer) (core.IndirectRef, error) {
	if d.chain.localDepth > 0 {
		return core.IndirectRef{}, fmt.Errorf("signing inside a local scope: %w", core.ErrUnsupported)
	}
	if signer == nil || signer.Size() <= 0 {
		return core.IndirectRef{}, fmt.Errorf("signer reserves no space: %w", core.ErrRange)
	}

	dict := core.Dict{
		"Type":      core.Name("Sig"),
		"Filter":    core.Name("Adobe.PPKLite"),
		"SubFilter": core.Name("adbe.pkcs7.detached"),
	}
	for k, v := range sig {
		dict[k] = core.Clone(v)
	}
	dict["ByteRange"] = core.Array{core.Int(0), core.Int(byteRangePlaceholder), core.Int(byteRangePlaceholder), core.Int(byteRangePlaceholder)}
	dict["Contents"] = core.String(make([]byte, signer.Size()))

	ref, err := d.Create(dict)
	if err != nil {
		return core.IndirectRef{}, err
	}
	edit := d.editSection()
	edit.signatures = append(edit.signatures, &pendingSignature{pin: d.Pin(ref), signer: signer})
	return ref, nil
}

// PendingSignatures returns the number of signatures waiting for a save.
func (d *Document) PendingSignatures() int {
	top := d.chain.top()
	if top.Committed() {
		return 0
	}
	return len(top.signatures)
}

// sign fills /ByteRange and /Contents of every pending signature in the
// serialized output.
func (st *saveState) sign(ctx context.Context) error {
	for _, sig := range st.signatures {
		ref, ok := st.pins[sig.pin]
		if !ok {
			return fmt.Errorf("signature pin was released: %w", core.ErrNotFound)
		}
		span, ok := st.spans[ref.Number]
		if !ok {
			return core.NewObjectError(ref.Number, ref.Generation, "sign", core.ErrNotFound, "signature dictionary was not written")
		}
		if err := st.signObject(ctx, ref, span, sig.signer); err != nil {
			return err
		}
	}
	return nil
}

func (st *saveState) signObject(ctx context.Context, ref core.IndirectRef, span [2]int, signer Signer) error {
	obj := st.buf[span[0]:span[1]]
	br, ok := delimited(obj, "/ByteRange", '[', ']')
	if !ok {
		return core.NewObjectError(ref.Number, ref.Generation, "sign", core.ErrFormat, "no /ByteRange placeholder")
	}
	ct, ok := delimited(obj, "/Contents", '<', '>')
	if !ok {
		return core.NewObjectError(ref.Number, ref.Generation, "sign", core.ErrFormat, "no hexadecimal /Contents placeholder")
	}
	if !bytes.Contains(obj, []byte("/Filter")) {
		return core.NewObjectError(ref.Number, ref.Generation, "sign", core.ErrFormat, "no /Filter")
	}

	total := st.base + int64(len(st.buf))
	cStart := st.base + int64(span[0]+ct[0])
	cEnd := st.base + int64(span[0]+ct[1])

	rng := fmt.Appendf(nil, "[0 %d %d %d]", cStart, cEnd, total-cEnd)
	slot := st.buf[span[0]+br[0] : span[0]+br[1]]
	if len(rng) > len(slot) {
		return core.NewObjectError(ref.Number, ref.Generation, "sign", core.ErrSignatureOverflow, "byte range needs %d bytes, %d reserved", len(rng), len(slot))
	}
	copy(slot, rng[:len(rng)-1])
	for i := len(rng) - 1; i < len(slot)-1; i++ {
		slot[i] = ' '
	}
	slot[len(slot)-1] = ']'

	file := concatReaderAt{head: st.doc.src, headSize: st.base, tail: st.buf}
	content := io.MultiReader(io.NewSectionReader(file, 0, cStart), io.NewSectionReader(file, cEnd, total-cEnd))
	signature, err := signer.Sign(ctx, content)
	if err != nil {
		return &core.ObjectError{Num: ref.Number, Gen: ref.Generation, Op: "sign", Err: err}
	}

	hex := filters.ASCIIHexEncode(signature)
	slot = st.buf[span[0]+ct[0]+1 : span[0]+ct[1]-1]
	if len(hex) > len(slot) {
		return core.NewObjectError(ref.Number, ref.Generation, "sign", core.ErrSignatureOverflow, "signature of %d bytes, %d reserved", len(signature), len(slot)/2)
	}
	copy(slot, hex)
	for i := len(hex); i < len(slot); i++ {
		slot[i] = '0'
	}
	return nil
}

// delimited finds key in obj and returns the range from the next left byte
// through the following right byte.
func delimited(obj []byte, key string, left, right byte) ([2]int, bool) {
	i := bytes.Index(obj, []byte(key))
	if i < 0 {
		return [2]int{}, false
	}
	i += len(key)
	j := bytes.IndexByte(obj[i:], left)
	if j < 0 {
		return [2]int{}, false
	}
	start := i + j
	k := bytes.IndexByte(obj[start:], right)
	if k < 0 {
		return [2]int{}, false
	}
	return [2]int{start, start + k + 1}, true
}

// concatReaderAt reads the first headSize bytes of head followed by tail,
// the file as it will exist once the output is written.
type concatReaderAt struct {
	head     io.ReaderAt
	headSize int64
	tail     []byte
}

func (c concatReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n := 0
	if off < c.headSize {
		want := p
		if rest := c.headSize - off; int64(len(want)) > rest {
			want = want[:rest]
		}
		m, err := c.head.ReadAt(want, off)
		n += m
		if m < len(want) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return n, err
		}
		off += int64(m)
		p = p[m:]
	}
	if len(p) == 0 {
		return n, nil
	}
	i := off - c.headSize
	if i >= int64(len(c.tail)) {
		return n, io.EOF
	}
	m := copy(p, c.tail[i:])
	n += m
	if m < len(p) {
		return n, io.EOF
	}
	return n, nil
}
