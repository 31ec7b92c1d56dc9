package printing

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a valid PDF with the given number of blank A4 pages
func minimalPDF(pages int) []byte {
	var objs []string
	kids := make([]string, pages)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for range pages {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << >> >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func recordingMerge(order *[]string) MergeFunc {
	return func(docs [][]byte) ([]byte, error) {
		for _, d := range docs {
			*order = append(*order, string(d))
		}
		return []byte(strings.Join(*order, "|")), nil
	}
}

func TestAssembler_Assemble(t *testing.T) {
	t.Run("merges in page index order regardless of arrival", func(t *testing.T) {
		var order []string
		a := NewAssembler(WithMergeFunc(recordingMerge(&order)))

		out, err := a.Assemble([]PageArtifact{
			{PageIndex: 2, Data: []byte("p3")},
			{PageIndex: 0, Data: []byte("p1")},
			{PageIndex: 1, Data: []byte("p2")},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"p1", "p2", "p3"}, order)
		assert.Equal(t, "p1|p2|p3", string(out))
	})

	t.Run("single page is returned as is", func(t *testing.T) {
		a := NewAssembler(WithMergeFunc(func([][]byte) ([]byte, error) {
			t.Fatal("merge must not run for one page")
			return nil, nil
		}))
		out, err := a.Assemble([]PageArtifact{{PageIndex: 0, Data: []byte("only")}})
		require.NoError(t, err)
		assert.Equal(t, "only", string(out))
	})

	cases := []struct {
		name    string
		pages   []PageArtifact
		message string
	}{
		{"no pages", nil, "no pages"},
		{"gap", []PageArtifact{{PageIndex: 0, Data: []byte("a")}, {PageIndex: 2, Data: []byte("c")}}, "page 2 is missing"},
		{"duplicate", []PageArtifact{{PageIndex: 0, Data: []byte("a")}, {PageIndex: 0, Data: []byte("b")}}, "page 2 is missing or duplicated"},
		{"empty page", []PageArtifact{{PageIndex: 0, Data: []byte("a")}, {PageIndex: 1}}, "page 2 is empty"},
	}
	for _, tc := range cases {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			_, err := NewAssembler().Assemble(tc.pages)
			var re *RenderError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, ErrCodeAssemblyFailed, re.Code)
			assert.Contains(t, re.Message, tc.message)
		})
	}

	t.Run("merge failure is an assembly error", func(t *testing.T) {
		a := NewAssembler(WithMergeFunc(func([][]byte) ([]byte, error) {
			return nil, errors.New("corrupt xref")
		}))
		_, err := a.Assemble([]PageArtifact{{PageIndex: 0, Data: []byte("a")}, {PageIndex: 1, Data: []byte("b")}})
		var re *RenderError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, ErrCodeAssemblyFailed, re.Code)
		assert.ErrorContains(t, err, "corrupt xref")
	})
}

func TestMergePDFs(t *testing.T) {
	one := minimalPDF(1)
	two := minimalPDF(2)

	n, err := CountPages(two)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	merged, err := NewAssembler().Assemble([]PageArtifact{
		{PageIndex: 1, Data: two},
		{PageIndex: 0, Data: one},
	})
	require.NoError(t, err)

	n, err = CountPages(merged)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountPages(t *testing.T) {
	t.Run("reads the page tree", func(t *testing.T) {
		n, err := CountPages(minimalPDF(4))
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("rejects non pdf input", func(t *testing.T) {
		_, err := CountPages([]byte("garbage"))
		assert.Error(t, err)
	})
}

func TestAssembler_PageCount(t *testing.T) {
	t.Run("uses the configured counter", func(t *testing.T) {
		a := NewAssembler(WithPageCountFunc(func([]byte) (int, error) { return 6, nil }))
		n, err := a.PageCount([]byte("doc"))
		require.NoError(t, err)
		assert.Equal(t, 6, n)
	})

	t.Run("counts a merged document", func(t *testing.T) {
		a := NewAssembler()
		merged, err := a.Assemble([]PageArtifact{
			{PageIndex: 0, Data: minimalPDF(1)},
			{PageIndex: 1, Data: minimalPDF(2)},
		})
		require.NoError(t, err)
		n, err := a.PageCount(merged)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("count failure is an assembly error", func(t *testing.T) {
		_, err := NewAssembler().PageCount([]byte("garbage"))
		var re *RenderError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, ErrCodeAssemblyFailed, re.Code)
	})
}
