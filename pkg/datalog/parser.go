package datalog

import (
	"fmt"

	"github.com/alecthomas/participle/v2"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// payloadAST is the grammar of V1_.._Vn|S1_.._Sn|E1_.._En|Count.
type payloadAST struct {
	Voltages *vectorAST `@@ Pipe`
	Starts   *vectorAST `@@ Pipe`
	Limits   *vectorAST `@@ Pipe`
	Count    int        `@Number`
}

type vectorAST struct {
	Values []string `@Number ( Join @Number )*`
}

type patternAST struct {
	Names []string `@Name ( Caret @Name )*`
}

type incrementAST struct {
	Counts []int `@Int ( Join @Int )*`
}

var (
	payloadParser   = participle.MustBuild[payloadAST](participle.Lexer(PayloadLexer), participle.Elide("Whitespace"))
	patternParser   = participle.MustBuild[patternAST](participle.Lexer(PatternLexer), participle.Elide("Whitespace"))
	incrementParser = participle.MustBuild[incrementAST](participle.Lexer(IncrementLexer), participle.Elide("Whitespace"))
)

// Record is the decoded main datalog record.
type Record struct {
	Voltages       []voltage.Voltage
	Starts         []voltage.Voltage
	Limits         []voltage.Voltage
	ExecutionCount int
}

// Targets returns the vector length shared by all three vectors.
func (r *Record) Targets() int {
	return len(r.Voltages)
}

// ParsePayload decodes a main record produced by Formatter.Payload.
func ParsePayload(s string) (*Record, error) {
	ast, err := payloadParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("datalog: parse error: %w", err)
	}

	rec := &Record{ExecutionCount: ast.Count}
	vectors := []struct {
		name string
		in   *vectorAST
		out  *[]voltage.Voltage
	}{
		{"voltages", ast.Voltages, &rec.Voltages},
		{"starts", ast.Starts, &rec.Starts},
		{"limits", ast.Limits, &rec.Limits},
	}
	for _, v := range vectors {
		vals, err := parseVector(v.in)
		if err != nil {
			return nil, fmt.Errorf("datalog: %s: %w", v.name, err)
		}
		*v.out = vals
	}

	if len(rec.Starts) != len(rec.Voltages) || len(rec.Limits) != len(rec.Voltages) {
		return nil, fmt.Errorf("datalog: vector lengths differ: %d voltages, %d starts, %d limits",
			len(rec.Voltages), len(rec.Starts), len(rec.Limits))
	}
	return rec, nil
}

func parseVector(v *vectorAST) ([]voltage.Voltage, error) {
	out := make([]voltage.Voltage, len(v.Values))
	for i, s := range v.Values {
		val, err := voltage.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

// ParsePatterns decodes a caret-joined limiting pattern record.
func ParsePatterns(s string) ([]string, error) {
	ast, err := patternParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("datalog: parse error: %w", err)
	}
	return ast.Names, nil
}

// ParseIncrements decodes an underscore-joined increment record.
func ParseIncrements(s string) ([]int, error) {
	ast, err := incrementParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("datalog: parse error: %w", err)
	}
	return ast.Counts, nil
}
