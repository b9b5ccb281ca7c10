// Package docx fills placeholders in Word (.docx) templates.
//
// Templates use single-brace tags inside ordinary document text:
//
//	{name}                     value substitution
//	{#name}...{/name}          section: loop over a list, or render once when truthy
//	{^name}...{/name}          inverted section: render when falsy or empty
//	{#childrenCount > 1}...{/} section driven by an expression
//
// Tags may be split across runs by Word's editor; they are merged into the
// run where they start before rendering.
package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"path"
	"strings"
)

const documentPart = "word/document.xml"

// isTemplatedPart reports whether a ZIP entry carries renderable content.
func isTemplatedPart(name string) bool {
	if name == documentPart {
		return true
	}
	for _, pattern := range []string{"word/header*.xml", "word/footer*.xml"} {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Render fills the template with data and returns the resulting .docx bytes.
// The output depends only on the inputs: rendering the same template with
// the same data always yields identical bytes.
func Render(template []byte, data map[string]any) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(template), int64(len(template)))
	if err != nil {
		return nil, &TemplateError{Reason: "not a valid .docx archive", Err: err}
	}
	if !hasPart(zr, documentPart) {
		return nil, &TemplateError{Part: documentPart, Reason: "missing main document part"}
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		if !isTemplatedPart(f.Name) {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("copy %s: %w", f.Name, err)
			}
			continue
		}

		src, err := readPart(f)
		if err != nil {
			return nil, &TemplateError{Part: f.Name, Reason: "unreadable part", Err: err}
		}
		rendered, err := renderPart(f.Name, src, data)
		if err != nil {
			return nil, err
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", f.Name, err)
		}
		if _, err := io.WriteString(w, rendered); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx: %w", err)
	}
	return out.Bytes(), nil
}

// PlainText returns the text of every paragraph in the main document, in
// order. Tabs and line breaks are kept as \t and \n.
func PlainText(doc []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	var src string
	found := false
	for _, f := range zr.File {
		if f.Name == documentPart {
			if src, err = readPart(f); err != nil {
				return nil, fmt.Errorf("read %s: %w", documentPart, err)
			}
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("open docx: missing %s", documentPart)
	}

	var paragraphs []string
	var stack []*strings.Builder
	for _, tok := range tokenize(src) {
		if tok.kind == textToken {
			if len(stack) > 0 {
				stack[len(stack)-1].WriteString(html.UnescapeString(tok.raw))
			}
			continue
		}
		name, closing, selfClosing := elementName(tok.raw)
		switch {
		case name == "w:p" && selfClosing:
			paragraphs = append(paragraphs, "")
		case name == "w:p" && closing:
			if len(stack) > 0 {
				paragraphs = append(paragraphs, stack[len(stack)-1].String())
				stack = stack[:len(stack)-1]
			}
		case name == "w:p":
			stack = append(stack, &strings.Builder{})
		case tok.raw == "<w:tab/>" && len(stack) > 0:
			stack[len(stack)-1].WriteByte('\t')
		case (name == "w:br" || name == "w:cr") && len(stack) > 0:
			stack[len(stack)-1].WriteByte('\n')
		}
	}
	return paragraphs, nil
}

func hasPart(zr *zip.Reader, name string) bool {
	for _, f := range zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

func readPart(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
