package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cbroglie/mustache"

	"github.com/roach88/docpost/internal/fault"
)

func init() {
	// A placeholder naming a missing path fails the render.
	mustache.AllowMissingVariables = false
}

// Definition is one immutable template version.
type Definition struct {
	// Body is the template document. Only meaningful when HasBody is set.
	Body    any
	HasBody bool

	Version int64
}

// Render runs every string value of the body through mustache with data as
// the context, producing a structurally parallel result. Rendered values
// are always strings; other JSON values and object keys are copied as-is.
// Values are not HTML-escaped.
//
// Rendering is deterministic and does not modify the body or data.
func (d *Definition) Render(data any) (any, error) {
	if d == nil {
		return nil, fault.New(fault.CodeMissingTemplate, "template has not materialized")
	}
	if !d.HasBody {
		return nil, fault.New(fault.CodeTemplateRenderFailed, "template body is absent (version %d)", d.Version)
	}
	return render(d.Body, view(data), "")
}

func render(node, ctx any, at string) (any, error) {
	switch n := node.(type) {
	case string:
		if !strings.Contains(n, "{{") {
			return n, nil
		}
		out, err := mustache.RenderRaw(n, true, ctx)
		if err != nil {
			return nil, fault.Wrap(fault.CodeTemplateRenderFailed, err, "render %s", where(at))
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			r, err := render(v, ctx, join(at, k))
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			r, err := render(v, ctx, join(at, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return n, nil
	}
}

// list prints like a JavaScript array: elements joined by commas.
type list []any

func (l list) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

// view prepares data as a mustache context. Arrays print as comma-joined
// lists and null prints (and tests) as empty.
func view(v any) any {
	switch n := v.(type) {
	case nil:
		return ""
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = view(e)
		}
		return out
	case []any:
		out := make(list, len(n))
		for i, e := range n {
			out[i] = view(e)
		}
		return out
	default:
		return v
	}
}

func join(at, seg string) string {
	if at == "" {
		return seg
	}
	return at + "." + seg
}

func where(at string) string {
	if at == "" {
		return "template root"
	}
	return at
}
