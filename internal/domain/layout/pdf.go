package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// paperNames maps supported page sizes in points to pdfcpu paper names.
var paperNames = map[[2]int]string{
	{612, 792}:  "Letter",
	{612, 1008}: "Legal",
	{595, 842}:  "A4",
}

// paperName returns the pdfcpu paper name for a page size in points.
func paperName(width, height float64) (string, bool) {
	name, ok := paperNames[[2]int{int(math.Round(width)), int(math.Round(height))}]
	return name, ok
}

// pdfcpu JSON content description, origin lower left.
type pdfDescription struct {
	Paper  string             `json:"paper"`
	Origin string             `json:"origin"`
	Pages  map[string]pdfPage `json:"pages"`
}

type pdfPage struct {
	Content pdfContent `json:"content"`
}

type pdfContent struct {
	Text []pdfText `json:"text"`
}

type pdfText struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  pdfFont    `json:"font"`
}

type pdfFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// describe converts the page model into a pdfcpu content description.
func describe(doc *Document) (*pdfDescription, error) {
	paper, ok := paperName(doc.Width, doc.Height)
	if !ok {
		return nil, fmt.Errorf("layout: no PDF paper size for %.0fx%.0fpt", doc.Width, doc.Height)
	}
	d := &pdfDescription{
		Paper:  paper,
		Origin: "LowerLeft",
		Pages:  make(map[string]pdfPage, len(doc.Pages)),
	}
	for _, p := range doc.Pages {
		texts := make([]pdfText, 0, len(p.Lines))
		for _, l := range p.Lines {
			font := pdfFont{Name: string(l.Font), Size: int(math.Round(l.Size))}
			x := l.X
			for _, run := range literalRuns(l.Text) {
				texts = append(texts, pdfText{
					Value: quoteRun(run),
					Pos:   [2]float64{round2(x), round2(doc.Height - l.Y)},
					Font:  font,
				})
				x += TextWidth(run, l.Font, l.Size)
			}
		}
		d.Pages[strconv.Itoa(p.Number)] = pdfPage{Content: pdfContent{Text: texts}}
	}
	return d, nil
}

// pdfcpu rewrites %p %P %t and %v in text values, drops any other single
// '%' and turns a literal backslash-n into a line break. A doubled '%'
// prints one '%' but leaves the next character open to the same
// rewriting, so text is cut into runs wherever such a pair follows.
func literalRuns(s string) []string {
	var runs []string
	start := 0
	for i := 0; i+1 < len(s); i++ {
		switch {
		case s[i] == '%' && strings.IndexByte("pPtv%", s[i+1]) >= 0:
		case s[i] == '\\' && s[i+1] == 'n':
		default:
			continue
		}
		runs = append(runs, s[start:i+1])
		start = i + 1
	}
	return append(runs, s[start:])
}

// quoteRun doubles every '%' in a run produced by literalRuns.
func quoteRun(run string) string {
	return strings.ReplaceAll(run, "%", "%%")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RenderPDF writes doc as a PDF to w. Output is buffered so that nothing
// reaches w when rendering fails.
func RenderPDF(doc *Document, w io.Writer) error {
	if doc == nil || len(doc.Pages) == 0 {
		return fmt.Errorf("layout: nothing to render")
	}
	d, err := describe(doc)
	if err != nil {
		return err
	}
	desc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("layout: encode page description: %w", err)
	}

	var buf bytes.Buffer
	conf := model.NewDefaultConfiguration()
	if err := api.Create(nil, bytes.NewReader(desc), &buf, conf); err != nil {
		return fmt.Errorf("layout: render pdf: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}
