package opengex

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TokenType is the lexical class of a token.
type TokenType int

const (
	TokenIllegal   TokenType = iota
	TokenIdent               // Metric, float, key, true
	TokenName                // $global or %local
	TokenString              // "text", Lit holds the unescaped contents
	TokenNumber              // 1.0, -2, 3e-4, 0x3F800000
	TokenArrayType           // float[3], unsigned_int32[3]
	TokenLBrace              // {
	TokenRBrace              // }
	TokenLParen              // (
	TokenRParen              // )
	TokenEquals              // =
	TokenComma               // ,
)

var tokenTypeNames = [...]string{
	TokenIllegal:   "Illegal",
	TokenIdent:     "Ident",
	TokenName:      "Name",
	TokenString:    "String",
	TokenNumber:    "Number",
	TokenArrayType: "ArrayType",
	TokenLBrace:    "LBrace",
	TokenRBrace:    "RBrace",
	TokenLParen:    "LParen",
	TokenRParen:    "RParen",
	TokenEquals:    "Equals",
	TokenComma:     "Comma",
}

// String returns the token type name.
func (t TokenType) String() string {
	if int(t) >= 0 && int(t) < len(tokenTypeNames) {
		return tokenTypeNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one lexical unit of a line.
type Token struct {
	Type TokenType
	Lit  string
	Col  int // 1-based byte column
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Type, t.Lit)
}

// isBrace reports whether the token changes bracket depth.
func (t Token) isBrace() bool {
	return t.Type == TokenLBrace || t.Type == TokenRBrace
}

// bareName strips the OpenDDL name sigil.
func bareName(s string) string {
	return strings.TrimLeft(s, "$%")
}

// Tokenize splits one line of OpenDDL text into tokens. Line comments end
// the line; block comments are skipped only when they close on the same line.
func Tokenize(line string) []Token {
	var toks []Token
	i := 0
	n := len(line)

	for i < n {
		c := line[i]
		start := i

		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
			continue

		case c == '/' && i+1 < n && line[i+1] == '/':
			return toks

		case c == '/' && i+1 < n && line[i+1] == '*':
			end := strings.Index(line[i+2:], "*/")
			if end < 0 {
				return toks
			}
			i += end + 4
			continue

		case c == '{':
			toks = append(toks, Token{TokenLBrace, "{", start + 1})
			i++
		case c == '}':
			toks = append(toks, Token{TokenRBrace, "}", start + 1})
			i++
		case c == '(':
			toks = append(toks, Token{TokenLParen, "(", start + 1})
			i++
		case c == ')':
			toks = append(toks, Token{TokenRParen, ")", start + 1})
			i++
		case c == '=':
			toks = append(toks, Token{TokenEquals, "=", start + 1})
			i++
		case c == ',':
			toks = append(toks, Token{TokenComma, ",", start + 1})
			i++

		case c == '"':
			lit, next := scanString(line, i)
			toks = append(toks, Token{TokenString, lit, start + 1})
			i = next

		case c == '$' || c == '%':
			i++
			for i < n && isIdentChar(line[i]) {
				i++
			}
			toks = append(toks, Token{TokenName, line[start:i], start + 1})

		case isDigit(c) || c == '.' || ((c == '-' || c == '+') && i+1 < n && (isDigit(line[i+1]) || line[i+1] == '.')):
			i = scanNumber(line, i)
			toks = append(toks, Token{TokenNumber, line[start:i], start + 1})

		case isIdentStart(c):
			for i < n && isIdentChar(line[i]) {
				i++
			}
			typ := TokenIdent
			// An identifier directly followed by [N] is an array type.
			if i < n && line[i] == '[' {
				if end := strings.IndexByte(line[i:], ']'); end > 0 {
					i += end + 1
					typ = TokenArrayType
				}
			}
			toks = append(toks, Token{typ, line[start:i], start + 1})

		default:
			toks = append(toks, Token{TokenIllegal, string(c), start + 1})
			i++
		}
	}

	return toks
}

// scanString reads a quoted string starting at line[i] == '"'. An
// unterminated string runs to the end of the line.
func scanString(line string, i int) (string, int) {
	var b strings.Builder
	i++
	for i < len(line) {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			next := line[i+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(next)
			}
			i += 2
		case c == '"':
			return b.String(), i + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}

func scanNumber(line string, i int) int {
	n := len(line)
	if line[i] == '-' || line[i] == '+' {
		i++
	}
	if i+1 < n && line[i] == '0' && (line[i+1] == 'x' || line[i+1] == 'X') {
		i += 2
		for i < n && isHexDigit(line[i]) {
			i++
		}
		return i
	}
	for i < n {
		c := line[i]
		switch {
		case isDigit(c) || c == '.':
			i++
		case c == 'e' || c == 'E':
			i++
			if i < n && (line[i] == '-' || line[i] == '+') {
				i++
			}
		default:
			return i
		}
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

// parseFloat parses a float literal. Hex literals are IEEE-754 bit
// patterns. ok is false for anything that is not a number.
func parseFloat(lit string) (float32, bool) {
	if isHexLiteral(lit) {
		bits, err := strconv.ParseUint(lit, 0, 32)
		if err != nil {
			return 0, false
		}
		return math.Float32frombits(uint32(bits)), true
	}
	f, err := strconv.ParseFloat(lit, 32)
	if err != nil {
		return 0, false
	}
	return float32(f), true
}

// parseUint parses an unsigned integer literal (decimal or hex).
func parseUint(lit string) (uint32, bool) {
	lit = strings.TrimPrefix(lit, "+")
	base := 10
	if isHexLiteral(lit) {
		lit, base = lit[2:], 16
	}
	v, err := strconv.ParseUint(lit, base, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func isHexLiteral(lit string) bool {
	lit = strings.TrimLeft(lit, "+-")
	return len(lit) > 2 && lit[0] == '0' && (lit[1] == 'x' || lit[1] == 'X')
}

// arrayType is a parsed primitive data type such as float[3].
type arrayType struct {
	elem  string // "float", "unsigned_int32", ...
	arity int    // 1 for a plain scalar list
}

// parseArrayType parses float, float[3], unsigned_int32[3] and friends.
func parseArrayType(lit string) (arrayType, bool) {
	elem, arity := lit, 1
	if open := strings.IndexByte(lit, '['); open >= 0 {
		n, err := strconv.Atoi(strings.TrimSuffix(lit[open+1:], "]"))
		if err != nil || n <= 0 {
			return arrayType{}, false
		}
		elem, arity = lit[:open], n
	}
	switch elem {
	case "float", "float32", "double", "float64", "half", "float16":
		return arrayType{elem: "float", arity: arity}, true
	case "unsigned_int8", "unsigned_int16", "unsigned_int32", "unsigned_int64", "uint8", "uint16", "uint32", "uint64":
		return arrayType{elem: "unsigned", arity: arity}, true
	}
	return arrayType{}, false
}

func (a arrayType) isFloat() bool    { return a.elem == "float" }
func (a arrayType) isUnsigned() bool { return a.elem == "unsigned" }

// line is one tokenized source line.
type line struct {
	num  int
	toks []Token
}

// properties parses the (key = value, ...) list that follows the head
// token and an optional structure name. It returns the property values by
// key and the index of the first token after the list.
func (l line) properties(from int) (map[string]Token, int) {
	i := from
	if i < len(l.toks) && l.toks[i].Type == TokenName {
		i++
	}
	if i >= len(l.toks) || l.toks[i].Type != TokenLParen {
		return nil, i
	}

	props := make(map[string]Token)
	i++
	for i < len(l.toks) && l.toks[i].Type != TokenRParen {
		if l.toks[i].Type == TokenIdent && i+2 < len(l.toks) && l.toks[i+1].Type == TokenEquals {
			props[l.toks[i].Lit] = l.toks[i+2]
			i += 3
			continue
		}
		i++
	}
	if i < len(l.toks) {
		i++ // closing paren
	}
	return props, i
}

// name returns the structure name directly after the head, without sigil.
func (l line) name() (string, bool) {
	if len(l.toks) > 1 && l.toks[1].Type == TokenName {
		return bareName(l.toks[1].Lit), true
	}
	return "", false
}

// first returns the first token of the given type at or after from.
func (l line) first(typ TokenType, from int) (Token, bool) {
	for i := from; i < len(l.toks); i++ {
		if l.toks[i].Type == typ {
			return l.toks[i], true
		}
	}
	return Token{}, false
}

// dataType returns the primitive type of an inline data structure, e.g.
// the float[3] in {float[3] {{1, 2, 3}}}.
func (l line) dataType(from int) (arrayType, bool) {
	for i := from; i < len(l.toks); i++ {
		t := l.toks[i]
		if t.Type != TokenIdent && t.Type != TokenArrayType {
			continue
		}
		if at, ok := parseArrayType(t.Lit); ok {
			return at, true
		}
	}
	return arrayType{}, false
}

// floats returns every numeric literal at or after from that parses as a
// float. Unparseable literals are dropped.
func (l line) floats(from int) []float32 {
	var out []float32
	for i := from; i < len(l.toks); i++ {
		if l.toks[i].Type != TokenNumber {
			continue
		}
		if f, ok := parseFloat(l.toks[i].Lit); ok {
			out = append(out, f)
		}
	}
	return out
}

// uints returns every numeric literal at or after from that parses as an
// unsigned integer. Unparseable literals are dropped.
func (l line) uints(from int) []uint32 {
	var out []uint32
	for i := from; i < len(l.toks); i++ {
		if l.toks[i].Type != TokenNumber {
			continue
		}
		if v, ok := parseUint(l.toks[i].Lit); ok {
			out = append(out, v)
		}
	}
	return out
}

// stringProp returns a string-valued property.
func stringProp(props map[string]Token, key string) (string, bool) {
	t, ok := props[key]
	if !ok || t.Type != TokenString {
		return "", false
	}
	return t.Lit, true
}
