// Package pdfx 负责把多份已完成的分片 PDF 拼接成一份新文档。
package pdfx

import (
	"bytes"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"

	"cardpress/internal/domain"
)

// Merger 按追加顺序把分片文档的页面导入到一份新 PDF 中。
//
// 约束：
// - 调用方负责按分片下标排好序后再 Append（本层不关心顺序语义）
// - 任何一份分片字节无法解析都让整次拼接失败（merge_failed），不产出部分文档
type Merger struct {
	pdf   *gofpdf.Fpdf
	pageW float64
	pageH float64
}

// NewMerger 构造拼接器。pageW/pageH 为横置后的页面尺寸（mm）。
func NewMerger(pageW, pageH float64) *Merger {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	return &Merger{pdf: pdf, pageW: pageW, pageH: pageH}
}

// Append 把一份分片文档的全部 pages 页依序追加进来。
//
// 底层导入器对损坏输入会 panic，这里统一 recover 成 merge_failed。
func (m *Merger) Append(doc []byte, pages int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Errorf(domain.ErrCodeMergeFailed, "分片文档无法加载：%v", r)
		}
	}()

	if len(doc) == 0 || pages <= 0 {
		return domain.Errorf(domain.ErrCodeMergeFailed, "分片文档为空（pages=%d）", pages)
	}

	imp := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(doc))
	for p := 1; p <= pages; p++ {
		tpl := imp.ImportPageFromStream(m.pdf, &rs, p, "/MediaBox")
		m.pdf.AddPage()
		imp.UseImportedTemplate(m.pdf, tpl, 0, 0, m.pageW, m.pageH)
	}
	return nil
}

// Output 产出拼接结果。
func (m *Merger) Output() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.pdf.Output(&buf); err != nil {
		return nil, domain.E(domain.ErrCodeMergeFailed, err)
	}
	return buf.Bytes(), nil
}
