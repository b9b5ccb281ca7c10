package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/cohabit/internal/docx"
	"github.com/dukerupert/cohabit/internal/model"
)

var (
	// ErrNoActiveTemplate means no template has been activated. It is a
	// configuration problem and is reported before any conversion call.
	ErrNoActiveTemplate = errors.New("no active template")
	// ErrContractNotFound covers both missing contracts and contracts owned
	// by someone else.
	ErrContractNotFound = errors.New("contract not found")
)

// Mode selects the full document or a watermarked preview.
type Mode int

const (
	ModeFull Mode = iota
	ModePreview
)

func (m Mode) String() string {
	if m == ModePreview {
		return "preview"
	}
	return "full"
}

const DefaultPreviewPages = 3

type ContractSource interface {
	GetForOwner(id, userID, teamID int64) (*model.Contract, error)
}

type TemplateSource interface {
	GetActive() (*model.Template, error)
}

type LawyerSource interface {
	GetByID(id int64) (*model.Lawyer, error)
}

// Request identifies the contract to render and who is asking for it.
type Request struct {
	ContractID   int64
	User         *model.User
	TeamID       int64
	Mode         Mode
	PreviewPages int
}

type Result struct {
	PDF         []byte
	Filename    string
	Mode        Mode
	Watermarked bool
	Contract    *model.Contract
}

// Generator runs the document pipeline: load the active template, prepare
// fields, render the .docx, convert it, and for previews trim and stamp.
// It reads from the database but never writes to it.
type Generator struct {
	contracts   ContractSource
	templates   TemplateSource
	lawyers     LawyerSource
	converter   Converter
	watermarker *Watermarker
	progress    ProgressStore
	logger      *slog.Logger

	now          func() time.Time
	previewPages int
	mark         Watermark
}

type GeneratorOption func(*Generator)

// WithClock sets the clock used for the agreement date.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

func WithPreviewPages(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.previewPages = n
		}
	}
}

func WithWatermark(mark Watermark) GeneratorOption {
	return func(g *Generator) { g.mark = mark }
}

func NewGenerator(
	contracts ContractSource,
	templates TemplateSource,
	lawyers LawyerSource,
	converter Converter,
	progress ProgressStore,
	logger *slog.Logger,
	opts ...GeneratorOption,
) *Generator {
	g := &Generator{
		contracts:    contracts,
		templates:    templates,
		lawyers:      lawyers,
		converter:    converter,
		watermarker:  NewWatermarker(logger),
		progress:     progress,
		logger:       logger,
		now:          time.Now,
		previewPages: DefaultPreviewPages,
		mark:         DefaultWatermark(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// tracker reports milestones for one generation.
type tracker struct {
	g          *Generator
	ctx        context.Context
	contractID int64
	percent    int
	started    time.Time
	stage      time.Time
}

func (t *tracker) step(percent int, label string) {
	now := time.Now()
	t.g.logger.Debug("pipeline stage", "contract_id", t.contractID, "label", label, "percent", percent, "elapsed", now.Sub(t.stage))
	t.stage = now
	t.percent = percent
	t.set(Progress{Percent: percent, Label: label})
}

func (t *tracker) fail(reason string, err error) {
	t.g.logger.Error("document generation failed", "contract_id", t.contractID, "reason", reason, "error", err, "duration", time.Since(t.started))
	t.set(Progress{Percent: t.percent, Label: "Failed: " + reason})
}

func (t *tracker) set(p Progress) {
	if t.g.progress == nil {
		return
	}
	if err := t.g.progress.Set(t.ctx, t.contractID, p); err != nil {
		t.g.logger.Warn("progress update failed", "contract_id", t.contractID, "error", err)
	}
}

// Generate produces the PDF for req. Errors are ErrContractNotFound,
// ErrNoActiveTemplate, *docx.TemplateError, *ConversionError, or wrapped
// storage errors. Nothing is retried.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.User == nil {
		return nil, ErrContractNotFound
	}
	c, err := g.contracts.GetForOwner(req.ContractID, req.User.ID, req.TeamID)
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}
	if c == nil {
		return nil, ErrContractNotFound
	}

	now := time.Now()
	t := &tracker{g: g, ctx: ctx, contractID: c.ID, started: now, stage: now}

	tpl, err := g.templates.GetActive()
	if err != nil {
		t.fail("template unavailable", err)
		return nil, fmt.Errorf("load active template: %w", err)
	}
	if tpl == nil {
		t.fail("no active template", ErrNoActiveTemplate)
		return nil, ErrNoActiveTemplate
	}
	content, err := tpl.Bytes()
	if err != nil {
		terr := &docx.TemplateError{Reason: fmt.Sprintf("stored template %d is not valid base64", tpl.ID), Err: err}
		t.fail("template error", terr)
		return nil, terr
	}
	t.step(10, "Template loaded")

	opts, err := g.prepareOptions(c)
	if err != nil {
		t.fail("lawyer lookup failed", err)
		return nil, err
	}
	fields := Prepare(c, req.User, opts)
	t.step(25, "Data prepared")

	rendered, err := docx.Render(content, fields)
	if err != nil {
		t.fail("template error", err)
		return nil, err
	}
	t.step(45, "Template rendered")

	t.step(60, "Converting to PDF")
	pdf, err := g.converter.Convert(ctx, rendered)
	if err != nil {
		reason := "conversion failed"
		var ce *ConversionError
		if errors.As(err, &ce) && ce.Unreachable {
			reason = "conversion service unreachable"
		}
		t.fail(reason, err)
		return nil, err
	}
	t.step(90, "Conversion finished")

	res := &Result{
		PDF:      pdf,
		Filename: fmt.Sprintf("cohabitation-agreement-%d.pdf", c.ID),
		Mode:     req.Mode,
		Contract: c,
	}
	if req.Mode == ModePreview {
		pages := req.PreviewPages
		if pages <= 0 {
			pages = g.previewPages
		}
		t.step(95, "Applying preview watermark")
		out, watermarked, err := g.watermarker.Preview(pdf, pages, g.mark)
		if err != nil {
			t.fail("preview could not be prepared", err)
			return nil, fmt.Errorf("prepare preview: %w", err)
		}
		res.PDF = out
		res.Watermarked = watermarked
		res.Filename = fmt.Sprintf("cohabitation-agreement-%d-preview.pdf", c.ID)
	}

	t.step(100, "Complete")
	g.logger.Info("document generated",
		"contract_id", c.ID, "mode", req.Mode.String(), "bytes", len(res.PDF),
		"watermarked", res.Watermarked, "duration", time.Since(t.started))
	return res, nil
}

func (g *Generator) prepareOptions(c *model.Contract) (PrepareOptions, error) {
	opts := PrepareOptions{Now: g.now()}
	if g.lawyers == nil {
		return opts, nil
	}
	var err error
	if c.UserLawyerID != nil {
		if opts.UserLawyer, err = g.lawyers.GetByID(*c.UserLawyerID); err != nil {
			return opts, fmt.Errorf("load user lawyer: %w", err)
		}
	}
	if c.PartnerLawyerID != nil {
		if opts.PartnerLawyer, err = g.lawyers.GetByID(*c.PartnerLawyerID); err != nil {
			return opts, fmt.Errorf("load partner lawyer: %w", err)
		}
	}
	return opts, nil
}
