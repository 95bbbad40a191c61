package hcl_adapter

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// basenameFunc returns the last element of a path.
var basenameFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "path", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(filepath.Base(args[0].AsString())), nil
	},
})

// dirnameFunc returns all but the last element of a path.
var dirnameFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "path", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(filepath.Dir(args[0].AsString())), nil
	},
})

func functions() map[string]function.Function {
	return map[string]function.Function{
		"join":     stdlib.JoinFunc,
		"format":   stdlib.FormatFunc,
		"upper":    stdlib.UpperFunc,
		"lower":    stdlib.LowerFunc,
		"replace":  stdlib.ReplaceFunc,
		"basename": basenameFunc,
		"dirname":  dirnameFunc,
	}
}

// scope accumulates the variables visible to an expression.
type scope map[string]cty.Value

func (s scope) with(name string, v cty.Value) scope {
	out := make(scope, len(s)+1)
	for k, val := range s {
		out[k] = val
	}
	out[name] = v
	return out
}

func (s scope) evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{Variables: s, Functions: functions()}
}

// stringObject builds an object value; an empty map yields an empty object.
func stringObject(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	vals := make(map[string]cty.Value, len(m))
	for k, v := range m {
		vals[k] = cty.StringVal(v)
	}
	return cty.ObjectVal(vals)
}

// evalString evaluates expr to a string. A null or absent expression yields
// def.
func evalString(expr hcl.Expression, s scope, def string) (string, error) {
	if expr == nil {
		return def, nil
	}
	val, diags := expr.Value(s.evalContext())
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return def, nil
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("%s: %w", expr.Range(), err)
	}
	return str.AsString(), nil
}

// evalStringList evaluates expr to a list of strings. Null yields nil.
func evalStringList(expr hcl.Expression, s scope) ([]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(s.evalContext())
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	list, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("%s: expected a list of strings: %w", expr.Range(), err)
	}

	out := make([]string, 0, list.LengthInt())
	for it := list.ElementIterator(); it.Next(); {
		_, v := it.Element()
		if v.IsNull() {
			continue
		}
		out = append(out, v.AsString())
	}
	return out, nil
}

// evalStringMap evaluates expr to a string map. Null elements become "".
func evalStringMap(expr hcl.Expression, s scope) (map[string]string, error) {
	if expr == nil {
		return map[string]string{}, nil
	}
	val, diags := expr.Value(s.evalContext())
	if diags.HasErrors() {
		return nil, diags
	}
	out := map[string]string{}
	if val.IsNull() {
		return out, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("%s: expected a map, got %s", expr.Range(), val.Type().FriendlyName())
	}

	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		if v.IsNull() {
			out[k.AsString()] = ""
			continue
		}
		str, err := convert.Convert(v, cty.String)
		if err != nil {
			return nil, fmt.Errorf("%s: value of %q: %w", expr.Range(), k.AsString(), err)
		}
		out[k.AsString()] = str.AsString()
	}
	return out, nil
}

// joinParams renders params sorted by key as "k<sep>v", or a bare "k" when
// the value is empty, separated by spaces.
func joinParams(params map[string]string, sep string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		if params[k] == "" {
			pairs = append(pairs, k)
			continue
		}
		pairs = append(pairs, k+sep+params[k])
	}
	return strings.Join(pairs, " ")
}
