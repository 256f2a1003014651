// Package style models the vector-map style document: sources, layers and
// the data-driven expressions used in paint, layout and filter properties.
package style

import "fmt"

// Expression is a style expression in its JSON array form, for example
// ["get", "nv_moyen"].
type Expression []any

// Get reads a feature property.
func Get(property string) Expression {
	return Expression{"get", property}
}

// Literal wraps an array so it is not interpreted as an expression.
func Literal[T any](values []T) Expression {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return Expression{"literal", out}
}

// FeatureState reads a per-feature render flag.
func FeatureState(key string) Expression {
	return Expression{"feature-state", key}
}

// Step maps a numeric input onto outputs[i] where i is the number of
// stops that are <= input. len(outputs) must be len(stops)+1.
func Step(input Expression, outputs []string, stops []float64) Expression {
	expr := Expression{"step", input, outputs[0]}
	for i, stop := range stops {
		expr = append(expr, stop, outputs[i+1])
	}
	return expr
}

// FlagColor paints on when the feature-state flag is true and otherwise
// falls back to base, which may itself be an expression.
func FlagColor(flag, on string, base any) Expression {
	return Expression{
		"case",
		Expression{"boolean", FeatureState(flag), false},
		on,
		base,
	}
}

// InFilter keeps features whose field value, read as a string, is in ids.
// Numeric ids match their FormatValue form, the form clicks report.
func InFilter(field string, ids []string) Expression {
	return Expression{"in", Expression{"to-string", Get(field)}, Literal(ids)}
}

// Operator returns the expression operator, or "" for an empty expression.
func (e Expression) Operator() string {
	if len(e) == 0 {
		return ""
	}
	op, _ := e[0].(string)
	return op
}

func (e Expression) String() string {
	return fmt.Sprintf("%v", []any(e))
}
