package docx

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
)

func renderPart(name, src string, data map[string]any) (string, error) {
	p, err := parsePart(name, src)
	if err != nil {
		return "", err
	}
	if err := p.matchSections(); err != nil {
		return "", err
	}
	tree, err := p.build(0, len(p.nodes)-1, nil)
	if err != nil {
		return "", err
	}

	r := &renderer{part: name}
	r.buf.Grow(len(src))
	if err := r.render(tree, &scope{vars: data}); err != nil {
		return "", err
	}
	return r.buf.String(), nil
}

// scope is one level of name resolution. Loop items push a scope whose
// keys shadow the enclosing ones.
type scope struct {
	parent *scope
	vars   map[string]any
	dot    any
}

func (s *scope) lookup(name string) any {
	if name == "." {
		return s.dot
	}
	parts := strings.Split(name, ".")
	for sc := s; sc != nil; sc = sc.parent {
		v, ok := sc.vars[parts[0]]
		if !ok {
			continue
		}
		for _, key := range parts[1:] {
			m, ok := asMap(v)
			if !ok {
				return nil
			}
			v = m[key]
		}
		return v
	}
	return nil
}

// flatten merges all scopes into one parameter map, inner keys winning.
func (s *scope) flatten() map[string]any {
	var chain []*scope
	for sc := s; sc != nil; sc = sc.parent {
		chain = append(chain, sc)
	}
	params := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vars {
			params[k] = numeric(v)
		}
	}
	return params
}

// params resolves expression variables; unknown names evaluate to nil.
type params map[string]any

func (p params) Get(name string) (any, error) {
	return p[name], nil
}

type renderer struct {
	part string
	buf  strings.Builder
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

const lineBreak = `</w:t><w:br/><w:t xml:space="preserve">`

func (r *renderer) writeText(s string) {
	if !strings.Contains(s, "\n") {
		textEscaper.WriteString(&r.buf, s)
		return
	}
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			r.buf.WriteString(lineBreak)
		}
		textEscaper.WriteString(&r.buf, line)
	}
}

func (r *renderer) render(elems []element, sc *scope) error {
	for _, e := range elems {
		switch e := e.(type) {
		case rawElem:
			r.buf.WriteString(string(e))
		case textElem:
			r.writeText(string(e))
		case *varElem:
			v, err := r.value(e.tag, e.para, sc)
			if err != nil {
				return err
			}
			if isList(v) {
				return &TemplateError{Part: r.part, Paragraph: e.para, Tag: e.tag.src, Reason: "list value used outside a loop"}
			}
			r.writeText(display(v))
		case *sectionElem:
			if err := r.section(e, sc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *renderer) section(e *sectionElem, sc *scope) error {
	v, err := r.value(e.tag, e.para, sc)
	if err != nil {
		return err
	}
	inverted := e.tag.kind == invertedTag

	if items, ok := listItems(v); ok {
		if inverted {
			if len(items) == 0 {
				return r.render(e.children, sc)
			}
			return nil
		}
		for _, item := range items {
			if err := r.render(e.children, itemScope(sc, item)); err != nil {
				return err
			}
		}
		return nil
	}

	if truthy(v) == inverted {
		return nil
	}
	if !inverted {
		if m, ok := asMap(v); ok {
			return r.render(e.children, &scope{parent: sc, vars: m, dot: v})
		}
	}
	return r.render(e.children, sc)
}

func itemScope(parent *scope, item any) *scope {
	m, _ := asMap(item)
	return &scope{parent: parent, vars: m, dot: item}
}

func (r *renderer) value(t *tag, para int, sc *scope) (any, error) {
	if t.expr == nil {
		return sc.lookup(t.name), nil
	}
	vars := sc.flatten()
	v, err := t.expr.Eval(params(vars))
	if err != nil {
		if hasNilOperand(t.expr, vars) {
			return nil, nil
		}
		return nil, &TemplateError{Part: r.part, Paragraph: para, Tag: t.src, Reason: "invalid expression", Err: err}
	}
	return v, nil
}

// hasNilOperand reports whether any variable in expr is absent or nil.
// Comparisons against such values evaluate to false rather than failing.
func hasNilOperand(expr *govaluate.EvaluableExpression, vars map[string]any) bool {
	for _, name := range expr.Vars() {
		if vars[name] == nil {
			return true
		}
	}
	return false
}

// display formats a scalar for substitution. nil renders as "".
func display(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return ""
		}
		return v.String()
	}
	if _, ok := asMap(v); ok {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		return display(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return truthy(rv.Elem().Interface())
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	}
	return true
}

func isList(v any) bool {
	_, ok := listItems(v)
	return ok
}

func listItems(v any) ([]any, bool) {
	switch v := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []any:
		return v, true
	case []map[string]any:
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

// numeric converts integer and decimal-like values to float64 so they can
// take part in expression arithmetic and comparisons.
func numeric(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case float32:
		return float64(n)
	case interface{ InexactFloat64() float64 }:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		return n.InexactFloat64()
	}
	return v
}
