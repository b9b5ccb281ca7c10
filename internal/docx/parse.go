package docx

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/Knetic/govaluate"
)

type tokenKind uint8

const (
	markupToken tokenKind = iota
	textToken
)

// token is either a piece of markup or the raw character data of a w:t element.
type token struct {
	kind tokenKind
	raw  string
}

// tokenize splits a WordprocessingML part into markup and w:t character data.
// Character data outside w:t is kept as markup.
func tokenize(s string) []token {
	var toks []token
	inText := false
	for i := 0; i < len(s); {
		if s[i] == '<' {
			end := strings.IndexByte(s[i:], '>')
			if end < 0 {
				toks = append(toks, token{markupToken, s[i:]})
				break
			}
			raw := s[i : i+end+1]
			toks = append(toks, token{markupToken, raw})
			name, closing, selfClosing := elementName(raw)
			inText = name == "w:t" && !closing && !selfClosing
			i += end + 1
			continue
		}
		next := strings.IndexByte(s[i:], '<')
		if next < 0 {
			next = len(s) - i
		}
		kind := markupToken
		if inText {
			kind = textToken
		}
		toks = append(toks, token{kind, s[i : i+next]})
		i += next
	}
	return toks
}

// elementName parses a markup token. Declarations and comments have no name.
func elementName(raw string) (name string, closing, selfClosing bool) {
	s := strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
	if strings.HasPrefix(s, "?") || strings.HasPrefix(s, "!") {
		return "", false, false
	}
	if strings.HasPrefix(s, "/") {
		closing = true
		s = s[1:]
	}
	if strings.HasSuffix(s, "/") {
		selfClosing = true
		s = s[:len(s)-1]
	}
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		s = s[:i]
	}
	return s, closing, selfClosing
}

// preserveSpace rewrites a w:t start tag so leading and trailing spaces in
// substituted values survive.
func preserveSpace(raw string) string {
	if strings.Contains(raw, "xml:space=") {
		return raw
	}
	return strings.Replace(raw, "<w:t", `<w:t xml:space="preserve"`, 1)
}

type tagKind uint8

const (
	varTag tagKind = iota
	openTag
	invertedTag
	closeTag
)

type tag struct {
	kind tagKind
	src  string // as written, braces included
	name string
	expr *govaluate.EvaluableExpression
}

var simpleName = regexp.MustCompile(`^(\.|[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*)$`)

var smartQuotes = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")

func parseTag(src string) (*tag, string) {
	body := strings.TrimSpace(src[1 : len(src)-1])
	t := &tag{src: src, kind: varTag}
	if body != "" {
		switch body[0] {
		case '#':
			t.kind = openTag
		case '^':
			t.kind = invertedTag
		case '/':
			t.kind = closeTag
		}
		if t.kind != varTag {
			body = strings.TrimSpace(body[1:])
		}
	}
	t.name = body

	if t.kind == closeTag {
		return t, ""
	}
	if body == "" {
		return nil, "empty tag"
	}
	if !simpleName.MatchString(body) {
		expr, err := govaluate.NewEvaluableExpression(smartQuotes.Replace(body))
		if err != nil {
			return nil, "invalid expression: " + err.Error()
		}
		t.expr = expr
	}
	return t, ""
}

type nodeKind uint8

const (
	rawNode nodeKind = iota
	textNode
	tagNode
)

// node is one element of the flattened part. para, row and cell identify the
// innermost enclosing w:p, w:tr and w:tc (0 when outside one); depth is the
// element nesting level.
type node struct {
	kind  nodeKind
	text  string
	tag   *tag
	para  int
	row   int
	cell  int
	depth int
}

type paragraphStats struct {
	tags    int
	literal bool // contains non-space literal text
}

type part struct {
	name     string
	nodes    []node
	paraSpan map[int][2]int
	rowSpan  map[int][2]int
	stats    map[int]*paragraphStats
	spans    map[int]*span // keyed by outer start
}

// span is the expansion of a section: the outer node range it replaces and
// the inner ranges rendered once per iteration.
type span struct {
	open, close int
	start, end  int
	inner       [][2]int
}

func (p *part) errorf(para int, t *tag, reason string) *TemplateError {
	e := &TemplateError{Part: p.name, Paragraph: para, Reason: reason}
	if t != nil {
		e.Tag = t.src
	}
	return e
}

// parsePart turns a part into nodes with tags merged and located.
func parsePart(name, src string) (*part, error) {
	toks := tokenize(src)
	p := &part{
		name:     name,
		paraSpan: map[int][2]int{},
		rowSpan:  map[int][2]int{},
		stats:    map[int]*paragraphStats{},
		spans:    map[int]*span{},
	}

	// First pass: locate every text token's paragraph and decode it.
	texts := make(map[int]string)
	paraOf := make(map[int]int)
	var order []int
	groups := map[int][]int{}
	var paras []int
	next := 0
	for i, tok := range toks {
		if tok.kind == textToken {
			texts[i] = html.UnescapeString(tok.raw)
			cur := 0
			if len(paras) > 0 {
				cur = paras[len(paras)-1]
			}
			paraOf[i] = cur
			if _, seen := groups[cur]; !seen {
				order = append(order, cur)
			}
			groups[cur] = append(groups[cur], i)
			continue
		}
		n, closing, self := elementName(tok.raw)
		if n != "w:p" || self {
			continue
		}
		if closing {
			if len(paras) > 0 {
				paras = paras[:len(paras)-1]
			}
			continue
		}
		next++
		paras = append(paras, next)
	}

	for _, para := range order {
		if err := p.mergeSplitTags(para, groups[para], texts); err != nil {
			return nil, err
		}
	}

	// Second pass: build nodes with structural positions.
	var pStack, rStack, cStack []int
	top := func(s []int) int {
		if len(s) == 0 {
			return 0
		}
		return s[len(s)-1]
	}
	depth, paraSeq, rowSeq, cellSeq := 0, 0, 0, 0
	for i, tok := range toks {
		if tok.kind == textToken {
			if err := p.appendText(texts[i], paraOf[i], top(rStack), top(cStack), depth); err != nil {
				return nil, err
			}
			continue
		}

		n, closing, self := elementName(tok.raw)
		raw := tok.raw
		if n == "w:t" && !closing && !self {
			raw = preserveSpace(raw)
		}
		nd := node{kind: rawNode, text: raw}
		switch {
		case n == "" || self:
			nd.depth = depth
		case closing:
			depth--
			nd.depth = depth
		default:
			nd.depth = depth
			depth++
		}
		if !self && n != "" {
			switch n {
			case "w:p":
				if !closing {
					paraSeq++
					pStack = append(pStack, paraSeq)
				}
			case "w:tr":
				if !closing {
					rowSeq++
					rStack = append(rStack, rowSeq)
				}
			case "w:tc":
				if !closing {
					cellSeq++
					cStack = append(cStack, cellSeq)
				}
			}
		}
		nd.para, nd.row, nd.cell = top(pStack), top(rStack), top(cStack)
		idx := len(p.nodes)
		p.nodes = append(p.nodes, nd)

		if self || n == "" {
			continue
		}
		switch n {
		case "w:p":
			p.markBoundary(p.paraSpan, nd.para, idx, closing)
			if closing && len(pStack) > 0 {
				pStack = pStack[:len(pStack)-1]
			}
		case "w:tr":
			p.markBoundary(p.rowSpan, nd.row, idx, closing)
			if closing && len(rStack) > 0 {
				rStack = rStack[:len(rStack)-1]
			}
		case "w:tc":
			if closing && len(cStack) > 0 {
				cStack = cStack[:len(cStack)-1]
			}
		}
	}
	return p, nil
}

func (p *part) markBoundary(m map[int][2]int, id, idx int, closing bool) {
	b := m[id]
	if closing {
		b[1] = idx
	} else {
		b[0] = idx
	}
	m[id] = b
}

// mergeSplitTags moves every character of a tag into the text token where
// the tag starts. Word frequently splits typed text across several runs.
func (p *part) mergeSplitTags(para int, idx []int, texts map[int]string) error {
	out := make([]strings.Builder, len(idx))
	owner := -1
	for k, ti := range idx {
		for _, r := range texts[ti] {
			switch {
			case r == '{' && owner >= 0:
				return p.errorf(para, nil, "unbalanced delimiters: '{' inside an open tag")
			case r == '{':
				owner = k
			case r == '}' && owner < 0:
				return p.errorf(para, nil, "unbalanced delimiters: '}' without matching '{'")
			}
			target := k
			if owner >= 0 {
				target = owner
			}
			out[target].WriteRune(r)
			if r == '}' {
				owner = -1
			}
		}
	}
	if owner >= 0 {
		s := out[owner].String()
		return &TemplateError{
			Part:      p.name,
			Paragraph: para,
			Tag:       s[strings.LastIndexByte(s, '{'):],
			Reason:    "unbalanced delimiters: tag is never closed",
		}
	}
	for k, ti := range idx {
		texts[ti] = out[k].String()
	}
	return nil
}

// appendText splits decoded w:t content into literal and tag nodes.
func (p *part) appendText(s string, para, row, cell, depth int) error {
	st := p.stats[para]
	if st == nil {
		st = &paragraphStats{}
		p.stats[para] = st
	}
	add := func(n node) {
		n.para, n.row, n.cell, n.depth = para, row, cell, depth
		p.nodes = append(p.nodes, n)
	}
	for s != "" {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			break
		}
		if open > 0 {
			add(node{kind: textNode, text: s[:open]})
			if strings.TrimSpace(s[:open]) != "" {
				st.literal = true
			}
		}
		end := strings.IndexByte(s[open:], '}') + open
		t, reason := parseTag(s[open : end+1])
		if reason != "" {
			return p.errorf(para, &tag{src: s[open : end+1]}, reason)
		}
		add(node{kind: tagNode, text: t.src, tag: t})
		st.tags++
		s = s[end+1:]
	}
	if s != "" {
		add(node{kind: textNode, text: s})
		if strings.TrimSpace(s) != "" {
			st.literal = true
		}
	}
	return nil
}
