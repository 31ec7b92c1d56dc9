package printing

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageArtifact is the rendered output of one planned page
type PageArtifact struct {
	PageIndex int
	Data      []byte
}

// MergeFunc concatenates PDF documents in the given order
type MergeFunc func(docs [][]byte) ([]byte, error)

// PageCountFunc reports the number of pages of a PDF
type PageCountFunc func(pdf []byte) (int, error)

// Assembler joins per-page PDFs into one document in page plan order
type Assembler struct {
	merge MergeFunc
	count PageCountFunc
}

// AssemblerOption configures an Assembler
type AssemblerOption func(*Assembler)

// WithMergeFunc replaces the pdfcpu merge, used by tests
func WithMergeFunc(fn MergeFunc) AssemblerOption {
	return func(a *Assembler) {
		a.merge = fn
	}
}

// WithPageCountFunc replaces the pdfcpu page count, used by tests
func WithPageCountFunc(fn PageCountFunc) AssemblerOption {
	return func(a *Assembler) {
		a.count = fn
	}
}

// NewAssembler creates an assembler backed by pdfcpu
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{merge: MergePDFs, count: CountPages}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble sorts the pages by PageIndex and merges them. Pages may arrive
// in completion order; page N never precedes page N-1 in the output.
// A gap or duplicate in the indexes means a page is missing and fails
// the whole document rather than producing a partial PDF.
func (a *Assembler) Assemble(pages []PageArtifact) ([]byte, error) {
	if len(pages) == 0 {
		return nil, NewRenderError(ErrCodeAssemblyFailed, "no pages to assemble", nil)
	}

	sorted := make([]PageArtifact, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PageIndex < sorted[j].PageIndex
	})

	docs := make([][]byte, len(sorted))
	for i, page := range sorted {
		if page.PageIndex != i {
			return nil, NewRenderError(ErrCodeAssemblyFailed,
				fmt.Sprintf("page %d is missing or duplicated", i+1), nil)
		}
		if len(page.Data) == 0 {
			return nil, NewRenderError(ErrCodeAssemblyFailed,
				fmt.Sprintf("page %d is empty", i+1), nil)
		}
		docs[i] = page.Data
	}

	if len(docs) == 1 {
		return docs[0], nil
	}

	merged, err := a.merge(docs)
	if err != nil {
		return nil, NewRenderError(ErrCodeAssemblyFailed, "failed to merge pages", err)
	}
	return merged, nil
}

// PageCount returns the number of physical pages of an assembled document
func (a *Assembler) PageCount(pdf []byte) (int, error) {
	n, err := a.count(pdf)
	if err != nil {
		return 0, NewRenderError(ErrCodeAssemblyFailed, "failed to count pages", err)
	}
	return n, nil
}

// MergePDFs concatenates PDFs with pdfcpu using relaxed validation
func MergePDFs(docs [][]byte) ([]byte, error) {
	readers := make([]io.ReadSeeker, len(docs))
	for i, doc := range docs {
		readers[i] = bytes.NewReader(doc)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, pdfConfig()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// CountPages returns the page count of a PDF. pdfcpu resolves the page
// tree, so pages stored in compressed object streams are counted too.
func CountPages(pdf []byte) (int, error) {
	return api.PageCount(bytes.NewReader(pdf), pdfConfig())
}

func pdfConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}
