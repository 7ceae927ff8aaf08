package document

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/pdfrev/core"
)

// requireSameObjects checks that every object below want's bound resolves to
// an equal value in got. Streams are compared by decoded content.
func requireSameObjects(t *testing.T, want, got *Document, nums ...int) {
	t.Helper()
	for _, num := range nums {
		a, err := want.Get(num)
		require.NoError(t, err, "object %d", num)
		b, err := got.Get(num)
		require.NoError(t, err, "object %d", num)

		as, aok := a.(*core.Stream)
		bs, bok := b.(*core.Stream)
		if aok && bok {
			ad, err := as.Decoded()
			require.NoError(t, err)
			bd, err := bs.Decoded()
			require.NoError(t, err)
			assert.Equal(t, ad, bd, "object %d data", num)
			continue
		}
		assert.True(t, core.Equal(a, b), "object %d: %v != %v", num, a, b)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		opts       SaveOptions
		xrefStream bool
		version    PDFVersion
	}{
		{"table", SaveOptions{}, false, PDFVersion{1, 4}},
		{"xref stream", SaveOptions{XRefStream: true}, true, PDFVersion{1, 5}},
		{"object streams", SaveOptions{ObjectStreams: true, CompressStreams: true}, true, PDFVersion{1, 5}},
		{"explicit version", SaveOptions{Version: "1.7"}, false, PDFVersion{1, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := openBytes(t, samplePDF)
			doc := openBytes(t, samplePDF)
			out := newMemFile(nil)

			res, err := doc.Save(context.Background(), out, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, int64(len(out.Bytes())), res.Written)
			assert.Empty(t, res.Renumbered)

			saved := openFile(t, out, WithRepair(false))
			assert.Equal(t, tt.version, saved.Version())
			assert.Equal(t, 1, saved.Versions())
			assert.Equal(t, tt.xrefStream, saved.Sections()[0].XRefStream)
			requireSameObjects(t, orig, saved, 1, 2, 3, 4, 5, 6, 7, 8, 9)

			// the saved document is rebound to its output
			assert.Equal(t, 1, doc.Versions())
			assert.Equal(t, res.XRefOffset, doc.Sections()[0].Offset)
			requireSameObjects(t, orig, doc, 1, 2, 3, 4, 5, 6, 7, 8, 9)
		})
	}
}

func TestSaveObjectStreamsPacksMembers(t *testing.T) {
	doc := openBytes(t, samplePDF)
	out := newMemFile(nil)

	res, err := doc.Save(context.Background(), out, SaveOptions{ObjectStreams: true})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Packed, "every dictionary but the stream is packed")

	saved := openFile(t, out, WithRepair(false))
	e, ok := saved.Sections()[0].Entry(1)
	require.True(t, ok)
	assert.Equal(t, KindCompressed, e.Kind)

	e, ok = saved.Sections()[0].Entry(5)
	require.True(t, ok)
	assert.Equal(t, KindNormal, e.Kind, "streams stay direct")
}

func TestSaveCompressStreams(t *testing.T) {
	doc := openBytes(t, samplePDF)
	out := newMemFile(nil)
	_, err := doc.Save(context.Background(), out, SaveOptions{CompressStreams: true})
	require.NoError(t, err)

	saved := openFile(t, out)
	obj, err := saved.Get(5)
	require.NoError(t, err)
	stream := obj.(*core.Stream)
	assert.Equal(t, core.Name("FlateDecode"), stream.Dict.Get("Filter"))
	data, err := stream.Decoded()
	require.NoError(t, err)
	assert.Equal(t, "BT /F1 12 Tf ET", string(data))
}

func TestSaveGarbageCollect(t *testing.T) {
	doc := openBytes(t, samplePDF)
	out := newMemFile(nil)

	res, err := doc.Save(context.Background(), out, SaveOptions{Garbage: GarbageCollect})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)

	saved := openFile(t, out)
	_, err = saved.Get(6)
	assert.ErrorIs(t, err, core.ErrNotFound, "unreachable object is gone")
	requireSameObjects(t, openBytes(t, samplePDF), saved, 1, 2, 3, 4, 5, 7, 8, 9)
}

func TestSavePinKeepsObjectAlive(t *testing.T) {
	doc := openBytes(t, samplePDF)
	p := doc.Pin(core.IndirectRef{Number: 6})
	out := newMemFile(nil)

	res, err := doc.Save(context.Background(), out, SaveOptions{Garbage: GarbageCompact})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Removed)
	assert.Equal(t, core.IndirectRef{Number: 6}, p.Ref())

	saved := openFile(t, out)
	obj, err := saved.Get(6)
	require.NoError(t, err)
	assert.Equal(t, core.Bool(true), obj.(core.Dict).Get("Orphan"))
}

func TestSaveCompact(t *testing.T) {
	doc := openBytes(t, samplePDF)
	info := doc.Pin(core.IndirectRef{Number: 9})
	out := newMemFile(nil)

	res, err := doc.Save(context.Background(), out, SaveOptions{Garbage: GarbageCompact})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{7: 6, 8: 7, 9: 8}, res.Renumbered)
	assert.Equal(t, core.IndirectRef{Number: 8}, info.Ref(), "pins follow renumbering")

	saved := openFile(t, out)
	assert.Equal(t, 9, saved.NumObjects())
	assert.Equal(t, core.IndirectRef{Number: 8}, saved.Trailer().Get("Info"))

	obj, err := saved.Get(4)
	require.NoError(t, err)
	font := obj.(core.Dict).Get("Resources").(core.Dict).Get("Font").(core.Dict).Get("F1")
	assert.Equal(t, core.IndirectRef{Number: 7}, font)

	// the document itself now reads the compacted file
	obj, err = doc.Get(8)
	require.NoError(t, err)
	assert.True(t, obj.(core.Dict).Has("Producer"))
}

func TestSaveDeduplicate(t *testing.T) {
	doc := openBytes(t, samplePDF)
	out := newMemFile(nil)

	res, err := doc.Save(context.Background(), out, SaveOptions{Garbage: GarbageDeduplicate})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed, "orphan and duplicate font")
	assert.Equal(t, map[int]int{7: 6, 8: 6, 9: 7}, res.Renumbered)

	saved := openFile(t, out)
	for _, num := range []int{3, 4} {
		obj, err := saved.Get(num)
		require.NoError(t, err)
		font := obj.(core.Dict).Get("Resources").(core.Dict).Get("Font").(core.Dict).Get("F1")
		assert.Equal(t, core.IndirectRef{Number: 6}, font, "page %d", num)
	}
}

func TestDeduplicateKeepsPages(t *testing.T) {
	data := assemble([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R >>",
		"<< /Type /Page /Parent 2 0 R >>",
	}, "/Root 1 0 R")
	doc := openBytes(t, data)
	out := newMemFile(nil)

	res, err := doc.Save(context.Background(), out, SaveOptions{Garbage: GarbageDeduplicate})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Removed)

	saved := openFile(t, out)
	obj, err := saved.Get(2)
	require.NoError(t, err)
	assert.Equal(t, core.Array{core.IndirectRef{Number: 3}, core.IndirectRef{Number: 4}}, obj.(core.Dict).Get("Kids"))
}

func TestSaveIdempotent(t *testing.T) {
	opts := SaveOptions{Garbage: GarbageDeduplicate, ObjectStreams: true}

	first := newMemFile(nil)
	_, err := openBytes(t, samplePDF).Save(context.Background(), first, opts)
	require.NoError(t, err)

	once := openFile(t, first)
	second := newMemFile(nil)
	res, err := openFile(t, first).Save(context.Background(), second, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Removed)
	assert.Empty(t, res.Renumbered)

	twice := openFile(t, second)
	require.Equal(t, once.NumObjects(), twice.NumObjects())
	var nums []int
	for num := 1; num < once.NumObjects(); num++ {
		obj, err := once.Get(num)
		if err != nil {
			continue
		}
		if s, ok := obj.(*core.Stream); ok && (s.Dict.IsType("ObjStm") || s.Dict.IsType("XRef")) {
			continue
		}
		nums = append(nums, num)
	}
	assert.NotEmpty(t, nums)
	requireSameObjects(t, once, twice, nums...)
}

func TestSaveIncremental(t *testing.T) {
	src := newMemFile(samplePDF)
	doc := openFile(t, src)

	page, err := doc.MutableDict(3)
	require.NoError(t, err)
	page["Rotate"] = core.Int(90)
	require.NoError(t, doc.Delete(6))

	res, err := doc.Save(context.Background(), src, SaveOptions{Incremental: true})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(src.Bytes(), samplePDF), "original bytes are untouched")
	assert.Equal(t, int64(len(src.Bytes())-len(samplePDF)), res.Written)

	saved := openFile(t, src, WithRepair(false))
	assert.Equal(t, 2, saved.Versions())
	prev, ok := saved.Sections()[1].Trailer.GetInt("Prev")
	require.True(t, ok)
	assert.Equal(t, saved.Sections()[0].Offset, int64(prev))

	obj, err := saved.Get(3)
	require.NoError(t, err)
	assert.Equal(t, core.Int(90), obj.(core.Dict).Get("Rotate"))
	_, err = saved.Get(6)
	assert.ErrorIs(t, err, core.ErrNotFound)

	v0, err := saved.View(0)
	require.NoError(t, err)
	old, err := v0.Get(3)
	require.NoError(t, err)
	assert.False(t, old.(core.Dict).Has("Rotate"))

	changed, err := saved.ChangedBetween(0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 6}, changed)

	// the edit section was committed in place
	assert.Equal(t, 2, doc.Versions())
	assert.True(t, doc.Sections()[1].Committed())
	e, ok := doc.Sections()[1].Entry(3)
	require.True(t, ok)
	assert.False(t, e.Dirty())
	obj, err = doc.Get(3)
	require.NoError(t, err)
	assert.Equal(t, core.Int(90), obj.(core.Dict).Get("Rotate"))
}

func TestSaveIncrementalXRefStream(t *testing.T) {
	src := newMemFile(samplePDF)
	doc := openFile(t, src)
	require.NoError(t, doc.Update(6, core.Dict{"Orphan": core.Bool(false)}))

	_, err := doc.Save(context.Background(), src, SaveOptions{Incremental: true, XRefStream: true})
	require.NoError(t, err)

	saved := openFile(t, src, WithRepair(false))
	require.Equal(t, 2, saved.Versions())
	assert.True(t, saved.Sections()[1].XRefStream)
	obj, err := saved.Get(6)
	require.NoError(t, err)
	assert.Equal(t, core.Bool(false), obj.(core.Dict).Get("Orphan"))

	// a second edit appends a third version in the same format
	require.NoError(t, doc.Update(6, core.Int(3)))
	_, err = doc.Save(context.Background(), src, SaveOptions{Incremental: true})
	require.NoError(t, err)
	saved = openFile(t, src, WithRepair(false))
	assert.Equal(t, 3, saved.Versions())
	assert.True(t, saved.Sections()[2].XRefStream)
}

func TestSaveIncrementalToEmptyOutput(t *testing.T) {
	doc := openBytes(t, samplePDF)
	require.NoError(t, doc.Update(6, core.Int(1)))
	out := newMemFile(nil)

	_, err := doc.Save(context.Background(), out, SaveOptions{Incremental: true})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out.Bytes(), samplePDF))

	saved := openFile(t, out, WithRepair(false))
	assert.Equal(t, 2, saved.Versions())
}

func TestSaveIncrementalNothingToDo(t *testing.T) {
	src := newMemFile(samplePDF)
	doc := openFile(t, src)

	res, err := doc.Save(context.Background(), src, SaveOptions{Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Written)
	assert.Equal(t, samplePDF, src.Bytes())
}

func TestSaveIncrementalNoEditsToEmptyOutput(t *testing.T) {
	doc := openBytes(t, samplePDF)
	out := newMemFile(nil)

	res, err := doc.Save(context.Background(), out, SaveOptions{Incremental: true})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out.Bytes(), samplePDF), "the source is copied")
	assert.Greater(t, len(out.Bytes()), len(samplePDF), "an empty section follows")
	assert.Equal(t, int64(len(out.Bytes())), res.Written)

	saved := openFile(t, out, WithRepair(false))
	assert.Equal(t, 2, saved.Versions())
	changed, err := saved.ChangedBetween(0, 1)
	require.NoError(t, err)
	assert.Empty(t, changed)
	requireSameObjects(t, openBytes(t, samplePDF), saved, 1, 2, 3, 4, 5, 6, 7, 8, 9)
}

func TestIncrementalChecksOutputContent(t *testing.T) {
	doc := openBytes(t, samplePDF)
	require.NoError(t, doc.Update(6, core.Int(1)))

	other := bytes.Repeat([]byte{'x'}, len(samplePDF))
	out := newMemFile(other)
	_, err := doc.Save(context.Background(), out, SaveOptions{Incremental: true})
	assert.ErrorIs(t, err, core.ErrUnsupported)
	assert.Equal(t, other, out.Bytes(), "a foreign output is left alone")

	_, err = doc.Save(context.Background(), writeOnly{out}, SaveOptions{Incremental: true})
	assert.NoError(t, err, "outputs that cannot be read back are trusted")
}

func TestSaveSnapshot(t *testing.T) {
	doc := openBytes(t, samplePDF)
	require.NoError(t, doc.Update(6, core.Int(1)))
	out := newMemFile(nil)

	_, err := doc.Save(context.Background(), out, SaveOptions{Snapshot: true})
	require.NoError(t, err)

	assert.False(t, doc.Sections()[1].Committed(), "snapshot keeps the edit section in memory")
	e, _ := doc.Sections()[1].Entry(6)
	assert.True(t, e.Dirty())

	saved := openFile(t, out, WithRepair(false))
	obj, err := saved.Get(6)
	require.NoError(t, err)
	assert.Equal(t, core.Int(1), obj)
}

func TestSaveRejectedCombinations(t *testing.T) {
	tests := []struct {
		name string
		opts SaveOptions
	}{
		{"incremental with garbage", SaveOptions{Incremental: true, Garbage: GarbageCollect}},
		{"incremental with object streams", SaveOptions{Incremental: true, ObjectStreams: true}},
		{"snapshot with compression", SaveOptions{Snapshot: true, CompressStreams: true}},
		{"snapshot with garbage", SaveOptions{Snapshot: true, Garbage: GarbageCompact}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := openBytes(t, samplePDF)
			out := newMemFile(nil)
			_, err := doc.Save(context.Background(), out, tt.opts)
			assert.ErrorIs(t, err, core.ErrUnsupported)
			assert.Empty(t, out.Bytes())
		})
	}
}

func TestSaveBadVersion(t *testing.T) {
	doc := openBytes(t, samplePDF)
	_, err := doc.Save(context.Background(), newMemFile(nil), SaveOptions{Version: "latest"})
	assert.Error(t, err)
}

func TestFullSaveNeedsEmptyOutput(t *testing.T) {
	doc := openBytes(t, samplePDF)
	out := newMemFile([]byte("existing"))
	_, err := doc.Save(context.Background(), out, SaveOptions{})
	assert.ErrorIs(t, err, core.ErrUnsupported)
	assert.Equal(t, []byte("existing"), out.Bytes())
}

func TestIncrementalNeedsMatchingOutput(t *testing.T) {
	doc := openBytes(t, samplePDF)
	require.NoError(t, doc.Update(6, core.Int(1)))
	_, err := doc.Save(context.Background(), newMemFile([]byte("short")), SaveOptions{Incremental: true})
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestSaveEncrypted(t *testing.T) {
	data := assemble([]string{
		"<< /Type /Catalog >>",
		"<< /Filter /Standard /V 2 /R 3 >>",
	}, "/Root 1 0 R /Encrypt 2 0 R")
	doc := openBytes(t, data)
	assert.True(t, doc.Encrypted())

	_, err := doc.Save(context.Background(), newMemFile(nil), SaveOptions{})
	assert.ErrorIs(t, err, core.ErrUnsupported)

	src := newMemFile(data)
	doc = openFile(t, src)
	require.NoError(t, doc.Update(1, core.Dict{"Type": core.Name("Catalog"), "Lang": core.String("en")}))
	_, err = doc.Save(context.Background(), src, SaveOptions{Incremental: true})
	assert.NoError(t, err, "incremental saves leave encryption alone")
}

func TestSaveFailureTruncates(t *testing.T) {
	src := newMemFile(samplePDF)
	doc := openFile(t, src)
	require.NoError(t, doc.Update(6, core.Int(1)))
	src.failAfter = 10

	_, err := doc.Save(context.Background(), src, SaveOptions{Incremental: true})
	assert.ErrorIs(t, err, core.ErrIO)
	assert.Equal(t, samplePDF, src.Bytes(), "partial output is removed")
	assert.False(t, doc.Sections()[1].Committed(), "edits stay pending")

	src.failAfter = 0
	_, err = doc.Save(context.Background(), src, SaveOptions{Incremental: true})
	require.NoError(t, err)
	assert.True(t, doc.Sections()[1].Committed())
}

func TestSaveToWriteOnlyOutput(t *testing.T) {
	doc := openBytes(t, samplePDF)
	require.NoError(t, doc.Update(6, core.Int(1)))
	out := newMemFile(nil)

	_, err := doc.Save(context.Background(), writeOnly{out}, SaveOptions{Garbage: GarbageCompact})
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Versions(), "document stays bound to its source")

	saved := openFile(t, out)
	assert.Equal(t, 1, saved.Versions())
}

func TestSaveCancelled(t *testing.T) {
	doc := openBytes(t, samplePDF)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newMemFile(nil)
	_, err := doc.Save(ctx, out, SaveOptions{Garbage: GarbageCollect})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.Bytes())
}

func TestFileID(t *testing.T) {
	doc := openBytes(t, samplePDF)
	out := newMemFile(nil)
	_, err := doc.Save(context.Background(), out, SaveOptions{})
	require.NoError(t, err)

	first, ok := openFile(t, out).Trailer().GetArray("ID")
	require.True(t, ok)
	require.Len(t, first, 2)

	out2 := newMemFile(nil)
	_, err = openFile(t, out).Save(context.Background(), out2, SaveOptions{})
	require.NoError(t, err)
	second, ok := openFile(t, out2).Trailer().GetArray("ID")
	require.True(t, ok)
	assert.Equal(t, first[0], second[0], "permanent identifier is kept")
	assert.NotEqual(t, first[1], second[1], "changing identifier is renewed")
}

func TestParseGarbageLevel(t *testing.T) {
	for g := GarbageNone; g <= GarbageDeduplicate; g++ {
		got, err := ParseGarbageLevel(g.String())
		require.NoError(t, err)
		assert.Equal(t, g, got)
	}
	_, err := ParseGarbageLevel("everything")
	assert.Error(t, err)
}
