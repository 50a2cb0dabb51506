package datalog

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// PayloadLexer tokenizes the main record: underscore-joined voltage vectors
// separated by pipes, ending in the execution count.
var PayloadLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[\s\t\n\r]+`},
	{Name: "Number", Pattern: `-?[0-9]+(?:\.[0-9]+)?`},
	{Name: "Pipe", Pattern: `\|`},
	{Name: "Join", Pattern: `_`},
})

// PatternLexer tokenizes caret-joined limiting pattern names.
var PatternLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[\s\t\n\r]+`},
	{Name: "Caret", Pattern: `\^`},
	{Name: "Name", Pattern: `[^\^\s|]+`},
})

// IncrementLexer tokenizes underscore-joined increment counts.
var IncrementLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[\s\t\n\r]+`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Join", Pattern: `_`},
})
