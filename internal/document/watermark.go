package document

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Watermark describes the preview marking: a large diagonal text repeated
// on each page plus one header and one footer line.
type Watermark struct {
	Text   string
	Header string
	Footer string
}

// DefaultWatermark is the marking applied to unpaid previews.
func DefaultWatermark() Watermark {
	return Watermark{
		Text:   "PREVIEW",
		Header: "PREVIEW - purchase to download the complete agreement",
		Footer: "This preview is limited to the first pages and is not valid for signature",
	}
}

const (
	diagonalStyle = "fontname:Helvetica, points:72, rotation:45, opacity:0.18, fillcolor:#808080, scalefactor:1 abs, position:c"
	lineStyle     = "fontname:Helvetica, points:9, rotation:0, opacity:0.8, fillcolor:#B00020, scalefactor:1 abs"
)

var disableConfigDir sync.Once

func pdfConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Watermarker produces page-limited, stamped previews.
type Watermarker struct {
	logger *slog.Logger
}

func NewWatermarker(logger *slog.Logger) *Watermarker {
	return &Watermarker{logger: logger}
}

// Preview keeps the first pages of pdf and stamps them. A failure to trim
// is returned as an error. A failure to stamp is logged and the trimmed,
// unstamped PDF is returned with watermarked set to false.
func (wm *Watermarker) Preview(pdf []byte, pages int, mark Watermark) (out []byte, watermarked bool, err error) {
	trimmed, err := TrimPages(pdf, pages)
	if err != nil {
		return nil, false, err
	}

	stamped, applied, err := stamp(trimmed, mark)
	if err != nil && applied == 0 {
		wm.logger.Warn("preview watermark failed, serving unwatermarked preview", "error", err)
		return trimmed, false, nil
	}
	if err != nil {
		wm.logger.Warn("preview watermark partially applied", "stamps", applied, "error", err)
	}
	return stamped, true, nil
}

// TrimPages returns a PDF holding at most the first n pages of pdf.
func TrimPages(pdf []byte, n int) ([]byte, error) {
	if n < 1 {
		return nil, fmt.Errorf("trim pages: page limit %d must be positive", n)
	}
	conf := pdfConfig()
	count, err := api.PageCount(bytes.NewReader(pdf), conf)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if count <= n {
		return pdf, nil
	}

	var buf bytes.Buffer
	selected := []string{fmt.Sprintf("1-%d", n)}
	if err := api.Trim(bytes.NewReader(pdf), &buf, selected, conf); err != nil {
		return nil, fmt.Errorf("trim pages: %w", err)
	}
	return buf.Bytes(), nil
}

// PageCount reports the number of pages in pdf.
func PageCount(pdf []byte) (int, error) {
	return api.PageCount(bytes.NewReader(pdf), pdfConfig())
}

var addWatermarks = api.AddWatermarks

// stamp applies the diagonal text three times down each page, then the
// header and footer. It returns the output after the last successful stamp
// and how many stamps were applied. A panic inside pdfcpu counts as a failed
// stamp.
func stamp(pdf []byte, mark Watermark) (current []byte, applied int, err error) {
	if strings.TrimSpace(mark.Text) == "" {
		return pdf, 0, errors.New("watermark text is empty")
	}
	type layer struct{ text, desc string }
	var layers []layer
	for _, offset := range []string{"0 220", "0 0", "0 -220"} {
		layers = append(layers, layer{mark.Text, diagonalStyle + ", offset:" + offset})
	}
	if strings.TrimSpace(mark.Header) != "" {
		layers = append(layers, layer{mark.Header, lineStyle + ", position:tc, offset:0 -14"})
	}
	if strings.TrimSpace(mark.Footer) != "" {
		layers = append(layers, layer{mark.Footer, lineStyle + ", position:bc, offset:0 14"})
	}

	conf := pdfConfig()
	current = pdf
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("apply stamp %d: pdfcpu panic: %v", applied+1, r)
		}
	}()
	for _, l := range layers {
		w, err := api.TextWatermark(l.text, l.desc, true, false, types.POINTS)
		if err != nil {
			return current, applied, fmt.Errorf("build stamp %q: %w", l.text, err)
		}
		var buf bytes.Buffer
		if err := addWatermarks(bytes.NewReader(current), &buf, nil, w, conf); err != nil {
			return current, applied, fmt.Errorf("apply stamp %q: %w", l.text, err)
		}
		current = buf.Bytes()
		applied++
	}
	return current, applied, nil
}
