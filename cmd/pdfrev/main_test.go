package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/pdfrev/document"
)

const samplePDF = `%PDF-1.4
1 0 obj
<< /Type /Catalog /Pages 2 0 R >>
endobj
2 0 obj
<< /Type /Pages /Kids [3 0 R] /Count 1 >>
endobj
3 0 obj
<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>
endobj
4 0 obj
<< /Orphan true >>
endobj
`

// writeSample writes a four-object file into a fresh working directory and
// returns its path.
func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	var b bytes.Buffer
	b.WriteString(samplePDF)
	offsets := []int{}
	for i := 1; i <= 4; i++ {
		offsets = append(offsets, bytes.Index(b.Bytes(), []byte(fmt.Sprintf("\n%d 0 obj", i)))+1)
	}
	xref := b.Len()
	b.WriteString("xref\n0 5\n0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)

	path := filepath.Join(dir, "in.pdf")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInfo(t *testing.T) {
	path := writeSample(t)
	out, err := run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "revision 0")
	assert.Contains(t, out, "table index")
	assert.Contains(t, out, "1 (first 612x792)")
	assert.NotContains(t, out, "fields")
}

func TestShow(t *testing.T) {
	path := writeSample(t)

	out, err := run(t, "show", path, "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog")
	assert.Contains(t, out, "2 0 R")

	out, err = run(t, "show", path, "1", "--resolve")
	require.NoError(t, err)
	assert.Contains(t, out, "Kids")
	assert.Contains(t, out, "MediaBox")

	_, err = run(t, "show", path, "one")
	assert.Error(t, err)

	_, err = run(t, "show", path, "1", "--revision", "3")
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	path := writeSample(t)
	outPath := filepath.Join(filepath.Dir(path), "out.pdf")

	out, err := run(t, "save", path, outPath, "--garbage", "compact")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	doc, err := document.Open(outPath)
	require.NoError(t, err)
	defer doc.Close()
	assert.Equal(t, 4, doc.NumObjects(), "the orphan was dropped")
}

func TestSaveIncremental(t *testing.T) {
	path := writeSample(t)
	outPath := filepath.Join(filepath.Dir(path), "out.pdf")

	_, err := run(t, "save", path, outPath, "--incremental")
	require.NoError(t, err)

	in, err := os.ReadFile(path)
	require.NoError(t, err)
	saved, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(saved, in))

	doc, err := document.Open(outPath)
	require.NoError(t, err)
	defer doc.Close()
	assert.Equal(t, 2, doc.Versions())
}

func TestSaveRejectsBadGarbage(t *testing.T) {
	path := writeSample(t)
	_, err := run(t, "save", path, filepath.Join(filepath.Dir(path), "out.pdf"), "--garbage", "all")
	assert.Error(t, err)
}

func TestSaveUsesConfig(t *testing.T) {
	path := writeSample(t)
	require.NoError(t, os.WriteFile("pdfrev.toml", []byte("[save]\ngarbage = \"collect\"\n"), 0o644))
	outPath := filepath.Join(filepath.Dir(path), "out.pdf")

	out, err := run(t, "save", path, outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "removed")
}

func TestRepair(t *testing.T) {
	path := writeSample(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	broken := data[:bytes.Index(data, []byte("xref"))]
	require.NoError(t, os.WriteFile(path, broken, 0o644))
	outPath := filepath.Join(filepath.Dir(path), "fixed.pdf")

	_, err = run(t, "repair", path, outPath)
	require.NoError(t, err)

	doc, err := document.Open(outPath, document.WithRepair(false))
	require.NoError(t, err)
	defer doc.Close()
	obj, err := doc.Get(3)
	require.NoError(t, err)
	assert.NotNil(t, obj)
}

func TestValidateWithoutSignatures(t *testing.T) {
	path := writeSample(t)
	out, err := run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "accepted")
}

func TestConfigCommand(t *testing.T) {
	writeSample(t)
	t.Setenv("PDFREV_SAVE_COMPRESS", "true")

	out, err := run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "[save]")
	assert.Contains(t, out, "compress = true")
}

func TestMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := run(t, "info", "absent.pdf")
	assert.Error(t, err)
}
