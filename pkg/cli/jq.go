package cli

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// JQFilter is a compiled jq expression. Expressions are compiled once so
// a tail loop can apply the filter to every event cheaply.
type JQFilter struct {
	expr string
	code *gojq.Code
}

// CompileJQ parses and compiles a jq expression.
func CompileJQ(expr string) (*JQFilter, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile jq expression %q: %w", expr, err)
	}
	return &JQFilter{expr: expr, code: code}, nil
}

// String returns the original expression.
func (f *JQFilter) String() string { return f.expr }

// Apply runs the filter over one value and returns all emitted values.
// The input is round-tripped through JSON so struct values work too.
func (f *JQFilter) Apply(v any) ([]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jq input: %w", err)
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decode jq input: %w", err)
	}

	var out []any
	iter := f.code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq %q: %w", f.expr, err)
		}
		out = append(out, v)
	}
	return out, nil
}
