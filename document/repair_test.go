package document

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/pdfrev/core"
)

// breakStartXRef points startxref past the end of the file.
func breakStartXRef(data []byte) []byte {
	i := bytes.LastIndex(data, []byte("startxref"))
	out := append([]byte(nil), data[:i]...)
	return append(out, "startxref\n999999\n%%EOF\n"...)
}

// swapXRefEntry makes the table entry of num point where other's does.
func swapXRefEntry(data []byte, num, other int) []byte {
	lines := bytes.Split(append([]byte(nil), data...), []byte("\n"))
	for i, line := range lines {
		if string(line) == "xref" {
			lines[i+2+num] = lines[i+2+other]
			break
		}
	}
	return bytes.Join(lines, []byte("\n"))
}

func TestRepairBrokenStartXRef(t *testing.T) {
	doc := openBytes(t, breakStartXRef(samplePDF))

	assert.True(t, doc.Repaired())
	assert.Equal(t, 1, doc.Versions())
	assert.NotNil(t, doc.Sections()[0].Trailer.Get("Root"))
	requireSameObjects(t, openBytes(t, samplePDF), doc, 1, 2, 3, 4, 5, 6, 7, 8, 9)
}

func TestRepairDisabled(t *testing.T) {
	data := breakStartXRef(samplePDF)
	_, err := NewDocument(bytes.NewReader(data), int64(len(data)), WithRepair(false))
	assert.ErrorIs(t, err, core.ErrFormat)
}

func TestRepairMissingIndex(t *testing.T) {
	data := samplePDF[:bytes.Index(samplePDF, []byte("xref\n"))]
	doc := openBytes(t, data)

	require.True(t, doc.Repaired())
	trailer := doc.Trailer()
	assert.Equal(t, core.IndirectRef{Number: 1}, trailer.Get("Root"), "catalog found by type")
	assert.Equal(t, core.IndirectRef{Number: 9}, trailer.Get("Info"), "info found by its keys")
	size, _ := trailer.GetInt("Size")
	assert.Equal(t, core.Int(10), size)
}

func TestRepairOnWrongOffset(t *testing.T) {
	doc := openBytes(t, swapXRefEntry(samplePDF, 3, 4))
	assert.False(t, doc.Repaired(), "the index looks valid until used")

	obj, err := doc.Get(3)
	require.NoError(t, err)
	assert.True(t, doc.Repaired())
	assert.True(t, obj.(core.Dict).Has("Contents"), "object 3 is the first page")
}

func TestRepairBadStreamLength(t *testing.T) {
	data := bytes.Replace(samplePDF, []byte("/Length 15"), []byte("/Length 10"), 1)
	doc := openBytes(t, data)

	obj, err := doc.Get(5)
	require.NoError(t, err)
	assert.True(t, doc.Repaired())
	stream := obj.(*core.Stream)
	assert.Equal(t, "BT /F1 12 Tf ET", string(stream.Data))
	assert.Equal(t, core.Int(15), stream.Dict.Get("Length"))
}

func TestRepairObjectStreams(t *testing.T) {
	out := newMemFile(nil)
	_, err := openBytes(t, samplePDF).Save(context.Background(), out, SaveOptions{ObjectStreams: true})
	require.NoError(t, err)

	data := out.Bytes()
	data = data[:bytes.LastIndex(data, []byte("startxref"))]
	doc := openBytes(t, data)

	require.True(t, doc.Repaired())
	e, ok := doc.Sections()[0].Entry(1)
	require.True(t, ok)
	assert.Equal(t, KindCompressed, e.Kind)
	requireSameObjects(t, openBytes(t, samplePDF), doc, 1, 2, 3, 4, 5, 6, 7, 8, 9)
}

func TestRepairLaterDefinitionWins(t *testing.T) {
	data := breakStartXRef(samplePDF)
	data = append(data, "6 0 obj\n<< /Orphan false >>\nendobj\n"...)
	doc := openBytes(t, data)

	obj, err := doc.Get(6)
	require.NoError(t, err)
	assert.Equal(t, core.Bool(false), obj.(core.Dict).Get("Orphan"))
}

func TestRepairSkipsCorruptObjects(t *testing.T) {
	data := bytes.Replace(samplePDF, []byte("<< /Orphan true >>"), []byte("<< /Orphan [ >>"), 1)
	doc := openBytes(t, breakStartXRef(data))

	_, err := doc.Get(6)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = doc.Get(7)
	assert.NoError(t, err)
}

func TestRepairIdempotent(t *testing.T) {
	doc := openBytes(t, samplePDF)
	require.NoError(t, doc.Repair(context.Background()))
	first := doc.NumObjects()
	assert.NotNil(t, doc.Sections()[0].PreRepairTrailer)

	require.NoError(t, doc.Repair(context.Background()))
	assert.Equal(t, first, doc.NumObjects())
	requireSameObjects(t, openBytes(t, samplePDF), doc, 1, 2, 3, 4, 5, 6, 7, 8, 9)
}

func TestRepairKeepsEdits(t *testing.T) {
	doc := openBytes(t, samplePDF)
	require.NoError(t, doc.Update(6, core.Int(1)))

	require.NoError(t, doc.Repair(context.Background()))
	assert.Equal(t, 2, doc.Versions())
	obj, err := doc.Get(6)
	require.NoError(t, err)
	assert.Equal(t, core.Int(1), obj)
}

func TestRepairInvalidatesViews(t *testing.T) {
	doc := openBytes(t, samplePDF)
	v, err := doc.View(0)
	require.NoError(t, err)

	require.NoError(t, doc.Repair(context.Background()))
	_, err = v.Get(1)
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestRepairCancelled(t *testing.T) {
	doc := openBytes(t, samplePDF)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := doc.Repair(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIncrementalAfterRepair(t *testing.T) {
	data := breakStartXRef(samplePDF)
	src := newMemFile(data)
	doc := openFile(t, src)
	require.True(t, doc.Repaired())
	require.NoError(t, doc.Update(6, core.Int(1)))

	_, err := doc.Save(context.Background(), src, SaveOptions{Incremental: true})
	assert.ErrorIs(t, err, core.ErrUnsupported)

	out := newMemFile(nil)
	_, err = doc.Save(context.Background(), out, SaveOptions{})
	require.NoError(t, err)
	assert.False(t, doc.Repaired(), "a full save leaves a sound file behind")

	saved := openFile(t, out, WithRepair(false))
	obj, err := saved.Get(6)
	require.NoError(t, err)
	assert.Equal(t, core.Int(1), obj)
}

func TestRepairNoCatalog(t *testing.T) {
	data := []byte("%PDF-1.4\n1 0 obj\n<< /Kind (none) >>\nendobj\n")
	_, err := NewDocument(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "catalog"))
}
