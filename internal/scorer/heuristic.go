package scorer

import (
	"fmt"
	"strings"
)

// NewExactMatch builds a sync scorer reporting metric "exact_match":
// 1.0 when response equals expected, else 0.0.
func NewExactMatch() *Sync {
	params := []Param{
		{Name: "response", Kind: KindString, Required: true},
		{Name: "expected", Kind: KindString, Required: true},
	}
	return NewSync("exact_match", params, func(args Args) (Outputs, error) {
		response, _ := args["response"].(string)
		expected, _ := args["expected"].(string)

		score := 0.0
		if response == expected {
			score = 1.0
		}
		return Outputs{"exact_match": score}, nil
	})
}

// NewIncludes builds a sync scorer reporting metric "includes": the
// fraction of expected substrings present in the response.
func NewIncludes() *Sync {
	params := []Param{
		{Name: "response", Kind: KindString, Required: true},
		{Name: "expected", Kind: KindList, Required: true},
	}
	return NewSync("includes", params, func(args Args) (Outputs, error) {
		response, _ := args["response"].(string)
		substrings, err := asStringSlice(args["expected"])
		if err != nil {
			return nil, fmt.Errorf("includes: %w", err)
		}
		if len(substrings) == 0 {
			return Outputs{"includes": 1.0}, nil
		}

		matched := 0
		for _, s := range substrings {
			if strings.Contains(response, s) {
				matched++
			}
		}
		return Outputs{"includes": float64(matched) / float64(len(substrings))}, nil
	})
}

func asStringSlice(v any) ([]string, error) {
	switch vv := v.(type) {
	case nil:
		return nil, fmt.Errorf("expected list of strings, got nil")
	case string:
		return []string{vv}, nil
	case []string:
		return vv, nil
	case []any:
		out := make([]string, 0, len(vv))
		for i, elem := range vv {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("expected[%d]: string, got %T", i, elem)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %T", v)
	}
}
