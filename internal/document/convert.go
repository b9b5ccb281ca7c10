package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/dukerupert/cohabit/internal/docx"
)

// Converter turns a filled .docx into PDF bytes.
type Converter interface {
	Name() string
	Convert(ctx context.Context, docx []byte) ([]byte, error)
}

// ConversionError is returned when a converter cannot produce a PDF.
// Unreachable means the service could not be contacted (or timed out);
// otherwise the service answered with a non-2xx Status and Body.
type ConversionError struct {
	Converter   string
	Unreachable bool
	Status      int
	Body        string
	Err         error
}

func (e *ConversionError) Error() string {
	if e.Unreachable {
		return fmt.Sprintf("%s: conversion service unreachable: %v", e.Converter, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: conversion rejected: status %d: %s", e.Converter, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: conversion failed: %v", e.Converter, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

const maxErrorBody = 4 << 10

// GotenbergConverter posts documents to Gotenberg's LibreOffice route.
type GotenbergConverter struct {
	baseURL    string
	httpClient *http.Client
}

type GotenbergOption func(*GotenbergConverter)

func WithHTTPClient(c *http.Client) GotenbergOption {
	return func(g *GotenbergConverter) {
		g.httpClient = c
	}
}

// NewGotenbergConverter creates a converter for the Gotenberg instance at
// baseURL. Requests time out after timeout; there is no retry.
func NewGotenbergConverter(baseURL string, timeout time.Duration, opts ...GotenbergOption) *GotenbergConverter {
	g := &GotenbergConverter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GotenbergConverter) Name() string { return "gotenberg" }

func (g *GotenbergConverter) Convert(ctx context.Context, doc []byte) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "document.docx")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(doc); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/forms/libreoffice/convert", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &ConversionError{Converter: g.Name(), Unreachable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ConversionError{
			Converter: g.Name(),
			Status:    resp.StatusCode,
			Body:      strings.TrimSpace(string(respBody)),
		}
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConversionError{Converter: g.Name(), Unreachable: true, Err: fmt.Errorf("read response: %w", err)}
	}
	return pdf, nil
}

// BasicConverter lays out the document's paragraph text as a plain PDF. It
// keeps no formatting and exists so previews remain available while the
// conversion service is down.
type BasicConverter struct{}

func (BasicConverter) Name() string { return "basic" }

func (BasicConverter) Convert(ctx context.Context, doc []byte) ([]byte, error) {
	paragraphs, err := docx.PlainText(doc)
	if err != nil {
		return nil, &ConversionError{Converter: "basic", Err: err}
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFont("Helvetica", "", 11)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	for _, p := range paragraphs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p) == "" {
			pdf.Ln(5)
			continue
		}
		pdf.MultiCell(0, 5.5, tr(p), "", "L", false)
		pdf.Ln(2)
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, &ConversionError{Converter: "basic", Err: err}
	}
	return out.Bytes(), nil
}

// Chain tries converters in order. It moves on to the next converter only
// when the current one is unreachable; a rejection is returned as is, since
// the next converter would be fed the same input.
type Chain struct {
	converters []Converter
	logger     *slog.Logger
}

func NewChain(logger *slog.Logger, converters ...Converter) *Chain {
	return &Chain{converters: converters, logger: logger}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.converters))
	for i, conv := range c.converters {
		names[i] = conv.Name()
	}
	return strings.Join(names, ",")
}

func (c *Chain) Convert(ctx context.Context, doc []byte) ([]byte, error) {
	if len(c.converters) == 0 {
		return nil, errors.New("no converters configured")
	}
	var lastErr error
	for i, conv := range c.converters {
		pdf, err := conv.Convert(ctx, doc)
		if err == nil {
			return pdf, nil
		}
		lastErr = err

		var ce *ConversionError
		if !errors.As(err, &ce) || !ce.Unreachable {
			return nil, err
		}
		if i < len(c.converters)-1 {
			c.logger.Warn("converter unreachable, falling back",
				"converter", conv.Name(), "next", c.converters[i+1].Name(), "error", err)
		}
	}
	return nil, lastErr
}
