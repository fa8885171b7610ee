// Package export writes the current view of a grid to a PDF document.
package export

import (
	"fmt"
	"image/color"
	"io"

	"github.com/jung-kurt/gofpdf"

	"TileBoard/internal/render"
)

// PDFSurface is a render.Surface backed by a single PDF page. One view pixel
// maps to one point.
type PDFSurface struct {
	pdf           *gofpdf.Fpdf
	width, height float64
	alpha         float64
}

// NewPDFSurface creates a one-page document of width x height points.
func NewPDFSurface(width, height float64, title string) (*PDFSurface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %gx%g", width, height)
	}
	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	p.SetMargins(0, 0, 0)
	p.SetAutoPageBreak(false, 0)
	p.SetCreator("TileBoard", false)
	if title != "" {
		p.SetTitle(title, true)
	}
	p.AddPage()
	return &PDFSurface{pdf: p, width: width, height: height, alpha: 1}, nil
}

func (s *PDFSurface) Size() (float64, float64) { return s.width, s.height }

func (s *PDFSurface) setAlpha(a uint8) {
	alpha := float64(a) / 255
	if alpha != s.alpha {
		s.pdf.SetAlpha(alpha, "Normal")
		s.alpha = alpha
	}
}

func nrgba(c color.Color) color.NRGBA {
	return color.NRGBAModel.Convert(c).(color.NRGBA)
}

func (s *PDFSurface) FillRect(x, y, w, h float64, c color.Color) {
	n := nrgba(c)
	s.setAlpha(n.A)
	s.pdf.SetFillColor(int(n.R), int(n.G), int(n.B))
	s.pdf.Rect(x, y, w, h, "F")
}

func (s *PDFSurface) StrokeRect(x, y, w, h float64, c color.Color, lineWidth float64, dash []float64) {
	n := nrgba(c)
	s.setAlpha(n.A)
	s.pdf.SetDrawColor(int(n.R), int(n.G), int(n.B))
	s.pdf.SetLineWidth(lineWidth)
	if len(dash) > 0 {
		s.pdf.SetDashPattern(dash, 0)
		defer s.pdf.SetDashPattern([]float64{}, 0)
	}
	s.pdf.Rect(x, y, w, h, "D")
}

func (s *PDFSurface) Line(x1, y1, x2, y2 float64, c color.Color, lineWidth float64) {
	n := nrgba(c)
	s.setAlpha(n.A)
	s.pdf.SetDrawColor(int(n.R), int(n.G), int(n.B))
	s.pdf.SetLineWidth(lineWidth)
	s.pdf.Line(x1, y1, x2, y2)
}

// Write finishes the document and writes it to w.
func (s *PDFSurface) Write(w io.Writer) error {
	if err := s.pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

// Save finishes the document and writes it to path.
func (s *PDFSurface) Save(path string) error {
	if err := s.pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to save pdf %s: %w", path, err)
	}
	return nil
}

// PDF paints the pipeline's current view onto a width x height page and
// writes it to w.
func PDF(w io.Writer, p *render.Pipeline, width, height float64, title string) error {
	s, err := NewPDFSurface(width, height, title)
	if err != nil {
		return err
	}
	p.Paint(s)
	return s.Write(w)
}

// PDFFile is PDF written to path.
func PDFFile(path string, p *render.Pipeline, width, height float64, title string) error {
	s, err := NewPDFSurface(width, height, title)
	if err != nil {
		return err
	}
	p.Paint(s)
	return s.Save(path)
}
