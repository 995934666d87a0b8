package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind classifies a lexical token
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenSymbol
	TokenName
	TokenString
	TokenNumber
)

func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "end of query"
	case TokenSymbol:
		return "symbol"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	}
	return "token"
}

// Token is one lexical unit. Offset is the byte offset of the token in the query.
type Token struct {
	Kind   TokenKind
	Value  string // unquoted value for strings
	Raw    string // source text
	Offset int
}

var symbols = []string{"//", "!=", "<=", ">=", "/", "[", "]", "(", ")", ",", "@", "=", "<", ">", "?", "$", ".", "-"}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return isNameStart(r) || unicode.IsDigit(r) || r == '-' || r == '.'
}

// tokenize splits a query into tokens. (: comments :) are dropped.
func tokenize(src string) ([]Token, *ParseError) {
	var tokens []Token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])

		switch {
		case unicode.IsSpace(r):
			i += size
			continue

		case strings.HasPrefix(src[i:], "(:"):
			end := strings.Index(src[i+2:], ":)")
			if end < 0 {
				return nil, NewParseError(ErrorKindSyntax, "unterminated comment").
					WithOffset(i).
					WithSuggestion("close the comment with ':)'")
			}
			i += 2 + end + 2
			continue

		case r == '\'' || r == '"':
			tok, next, err := lexString(src, i, byte(r))
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
			continue

		case r >= '0' && r <= '9':
			start := i
			for i < len(src) && src[i] >= '0' && src[i] <= '9' {
				i++
			}
			if i+1 < len(src) && src[i] == '.' && src[i+1] >= '0' && src[i+1] <= '9' {
				i++
				for i < len(src) && src[i] >= '0' && src[i] <= '9' {
					i++
				}
			}
			tokens = append(tokens, Token{Kind: TokenNumber, Value: src[start:i], Raw: src[start:i], Offset: start})
			continue

		case isNameStart(r):
			start := i
			i = lexName(src, i)
			// prefix:local forms one name as long as ':' is followed by a name
			if i+1 < len(src) && src[i] == ':' {
				if r2, _ := utf8.DecodeRuneInString(src[i+1:]); isNameStart(r2) {
					i = lexName(src, i+1)
				}
			}
			tokens = append(tokens, Token{Kind: TokenName, Value: src[start:i], Raw: src[start:i], Offset: start})
			continue
		}

		matched := false
		for _, sym := range symbols {
			if strings.HasPrefix(src[i:], sym) {
				tokens = append(tokens, Token{Kind: TokenSymbol, Value: sym, Raw: sym, Offset: i})
				i += len(sym)
				matched = true
				break
			}
		}
		if !matched {
			return nil, NewParseError(ErrorKindSyntax, "unexpected character "+string(r)).
				WithOffset(i)
		}
	}
	tokens = append(tokens, Token{Kind: TokenEOF, Offset: len(src)})
	return tokens, nil
}

func lexName(src string, i int) int {
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		if !isNameChar(r) {
			break
		}
		// a trailing '.' belongs to the next token (". ," in function args)
		if r == '.' && (i+1 >= len(src) || !isNameChar(rune(src[i+1]))) {
			break
		}
		i += size
	}
	return i
}

// lexString reads a quoted literal starting at src[start]; a doubled quote escapes itself.
func lexString(src string, start int, quote byte) (Token, int, *ParseError) {
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		if src[i] == quote {
			if i+1 < len(src) && src[i+1] == quote {
				b.WriteByte(quote)
				i += 2
				continue
			}
			return Token{Kind: TokenString, Value: b.String(), Raw: src[start : i+1], Offset: start}, i + 1, nil
		}
		b.WriteByte(src[i])
		i++
	}
	return Token{}, 0, NewParseError(ErrorKindSyntax, "unterminated string literal").
		WithOffset(start).
		WithSuggestion("close the string with " + string(quote))
}

// QuoteString renders s as a single-quoted literal
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
