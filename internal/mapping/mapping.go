// Package mapping binds dataset rows to scorer arguments. A mapping
// spec assigns each scorer parameter either a literal value or a
// ${data.*} path reference; parameters with no entry default to the row
// field of the same name.
package mapping

import (
	"fmt"
	"strconv"

	"github.com/stellarlinkco/batch-eval/internal/dataset"
	"github.com/stellarlinkco/batch-eval/internal/rowpath"
	"github.com/stellarlinkco/batch-eval/internal/scorer"
)

// ErrKind classifies a per-parameter mapping failure.
type ErrKind string

const (
	ErrMissingInput ErrKind = "missing_input"
	ErrBadInput     ErrKind = "bad_input"
)

// Error is a per-(scorer,row,parameter) mapping failure. It aborts only
// that row for that scorer, never the batch.
type Error struct {
	Param   string
	Kind    ErrKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("mapping: %s: %s: %s", e.Param, e.Kind, e.Message)
}

// Spec maps scorer parameter names to a literal value or a ${data.*}
// reference.
type Spec map[string]any

// Apply resolves args for one (scorer, row) pair. It is pure and
// deterministic: the same row and spec always yield the same args and
// errors. Mapping failures are returned per parameter, not as an error.
func Apply(params []scorer.Param, spec Spec, row dataset.Row) (scorer.Args, []*Error) {
	args := make(scorer.Args, len(params))
	var errs []*Error

	for _, p := range params {
		source, explicit := spec[p.Name]
		if !explicit {
			// Identity mapping by parameter name.
			source = rowpath.Ref(rowpath.Root + "." + p.Name)
		}

		var value any
		var found bool
		if path, ok := rowpath.ParseRef(source); ok {
			value, found = rowpath.Resolve(path, row)
		} else {
			value, found = source, true
		}

		if !found {
			if p.Required {
				errs = append(errs, &Error{
					Param:   p.Name,
					Kind:    ErrMissingInput,
					Message: fmt.Sprintf("no value for required parameter (source %v)", source),
				})
			}
			continue
		}

		coerced, err := coerce(p, value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		args[p.Name] = coerced
	}

	return args, errs
}

// coerce converts a resolved value to the parameter's declared kind.
// Only lossless, deterministic conversions are applied; anything lossy
// is a bad_input error rather than a silent drop.
func coerce(p scorer.Param, v any) (any, *Error) {
	switch p.Kind {
	case "", scorer.KindAny:
		return v, nil

	case scorer.KindString:
		switch vv := v.(type) {
		case string:
			return vv, nil
		case float64:
			return strconv.FormatFloat(vv, 'g', -1, 64), nil
		case int:
			return strconv.Itoa(vv), nil
		case int64:
			return strconv.FormatInt(vv, 10), nil
		case bool:
			return strconv.FormatBool(vv), nil
		default:
			return nil, &Error{
				Param:   p.Name,
				Kind:    ErrBadInput,
				Message: fmt.Sprintf("cannot convert %T to string", v),
			}
		}

	case scorer.KindNumber:
		switch vv := v.(type) {
		case float64:
			return vv, nil
		case int:
			return float64(vv), nil
		case int64:
			return float64(vv), nil
		default:
			return nil, &Error{
				Param:   p.Name,
				Kind:    ErrBadInput,
				Message: fmt.Sprintf("cannot convert %T to number", v),
			}
		}

	case scorer.KindList:
		switch v.(type) {
		case []any, []string, []float64:
			return v, nil
		default:
			return nil, &Error{
				Param:   p.Name,
				Kind:    ErrBadInput,
				Message: fmt.Sprintf("cannot convert %T to list", v),
			}
		}

	default:
		return nil, &Error{
			Param:   p.Name,
			Kind:    ErrBadInput,
			Message: fmt.Sprintf("unknown parameter kind %q", p.Kind),
		}
	}
}
