package docx

// element is a node of the render tree.
type element interface{}

type rawElem string

type textElem string

type varElem struct {
	tag  *tag
	para int
}

type sectionElem struct {
	tag      *tag
	para     int
	children []element
}

// matchSections pairs every section open tag with its close tag and records
// the expansion span for each pair.
func (p *part) matchSections() error {
	var stack []int
	for i, n := range p.nodes {
		if n.kind != tagNode {
			continue
		}
		switch n.tag.kind {
		case openTag, invertedTag:
			stack = append(stack, i)
		case closeTag:
			if len(stack) == 0 {
				return p.errorf(n.para, n.tag, "closing tag without an open section")
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			ot := p.nodes[open].tag
			if n.tag.name != "" && n.tag.name != ot.name {
				return p.errorf(n.para, n.tag, "closing tag does not match open section "+ot.src)
			}
			sp, err := p.expand(open, i)
			if err != nil {
				return err
			}
			if _, taken := p.spans[sp.start]; taken {
				return p.errorf(n.para, ot, "section overlaps another section")
			}
			p.spans[sp.start] = sp
		}
	}
	if len(stack) > 0 {
		n := p.nodes[stack[len(stack)-1]]
		return p.errorf(n.para, n.tag, "section is never closed")
	}
	return nil
}

// tagOnly reports whether the paragraph holds nothing but the one tag.
func (p *part) tagOnly(para int) bool {
	st := p.stats[para]
	return st != nil && st.tags == 1 && !st.literal
}

// expand decides how a section is repeated:
//   - open and close in one paragraph: the content between the tags
//   - in different cells of one table row: the whole row
//   - each alone in its own paragraph: the paragraphs between them
//   - otherwise the content between the tags, provided both sit at the same
//     nesting level
func (p *part) expand(open, close int) (*span, error) {
	o, c := p.nodes[open], p.nodes[close]
	between := &span{open: open, close: close, start: open, end: close, inner: [][2]int{{open + 1, close - 1}}}

	if o.para == c.para {
		return between, nil
	}
	if o.row != 0 && o.row == c.row && o.cell != c.cell {
		r := p.rowSpan[o.row]
		return &span{
			open: open, close: close,
			start: r[0], end: r[1],
			inner: [][2]int{{r[0], open - 1}, {open + 1, close - 1}, {close + 1, r[1]}},
		}, nil
	}
	if p.tagOnly(o.para) && p.tagOnly(c.para) {
		po, pc := p.paraSpan[o.para], p.paraSpan[c.para]
		if p.nodes[po[0]].depth == p.nodes[pc[0]].depth {
			return &span{
				open: open, close: close,
				start: po[0], end: pc[1],
				inner: [][2]int{{po[1] + 1, pc[0] - 1}},
			}, nil
		}
	}
	if o.depth == c.depth {
		return between, nil
	}
	return nil, p.errorf(o.para, o.tag, "section crosses a table boundary")
}

// build converts the node range [lo, hi] into a render tree. parent is the
// section whose inner range is being built; a row section's first inner
// range starts at its own outer start.
func (p *part) build(lo, hi int, parent *span) ([]element, error) {
	var out []element
	for i := lo; i <= hi; i++ {
		if sp, ok := p.spans[i]; ok && sp != parent {
			ot := p.nodes[sp.open]
			if sp.end > hi {
				return nil, p.errorf(ot.para, ot.tag, "section overlaps an enclosing section")
			}
			sec := &sectionElem{tag: ot.tag, para: ot.para}
			for _, r := range sp.inner {
				children, err := p.build(r[0], r[1], sp)
				if err != nil {
					return nil, err
				}
				sec.children = append(sec.children, children...)
			}
			out = append(out, sec)
			i = sp.end
			continue
		}

		n := p.nodes[i]
		switch n.kind {
		case rawNode:
			out = append(out, rawElem(n.text))
		case textNode:
			out = append(out, textElem(n.text))
		case tagNode:
			if n.tag.kind != varTag {
				return nil, p.errorf(n.para, n.tag, "section overlaps an enclosing section")
			}
			out = append(out, &varElem{tag: n.tag, para: n.para})
		}
	}
	return out, nil
}
