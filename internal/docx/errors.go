package docx

import "fmt"

// TemplateError reports a problem with a template's tags. Part is the ZIP
// entry (for example word/document.xml) and Paragraph the 1-based paragraph
// ordinal within that part, when known.
type TemplateError struct {
	Part      string
	Paragraph int
	Tag       string
	Reason    string
	Err       error
}

func (e *TemplateError) Error() string {
	msg := "template"
	if e.Part != "" {
		msg += " " + e.Part
	}
	if e.Paragraph > 0 {
		msg += fmt.Sprintf(" paragraph %d", e.Paragraph)
	}
	if e.Tag != "" {
		msg += fmt.Sprintf(" tag %q", e.Tag)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}
