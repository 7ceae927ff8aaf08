package core

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// hardStreamLimit caps a single stream when no file-derived limit was set.
const hardStreamLimit = 1 << 30

// ReferenceResolver is an interface for resolving indirect references.
// This allows the parser to resolve indirect stream lengths when needed.
type ReferenceResolver interface {
	ResolveReference(ref IndirectRef) (Object, error)
}

// Parser parses PDF objects from an io.Reader using a Lexer for tokenization.
// It supports parsing all PDF object types including indirect objects and streams.
type Parser struct {
	lexer        *Lexer
	currentToken *Token // Current token being processed
	peekToken    *Token // Next token (lookahead)
	lexErr       error  // first lexer failure, reported when the parser runs dry
	resolver     ReferenceResolver
	depth        int

	// lenient parsing, used by repair: stream data always runs to the next
	// endstream keyword and a missing endobj is tolerated
	lenient   bool
	maxStream int64
}

// NewParser creates a new PDF parser for the given reader.
// It initializes the lexer and loads the first two tokens for lookahead.
func NewParser(r io.Reader) *Parser {
	p := &Parser{
		lexer:     NewLexer(r),
		maxStream: hardStreamLimit,
	}
	p.nextToken()
	p.nextToken()
	return p
}

// SetReferenceResolver sets the reference resolver for the parser.
// This is needed to resolve indirect stream lengths.
func (p *Parser) SetReferenceResolver(resolver ReferenceResolver) {
	p.resolver = resolver
}

// SetLenient switches the parser into recovery mode.
func (p *Parser) SetLenient(lenient bool) {
	p.lenient = lenient
}

// SetMaxStreamLength bounds the declared length of any stream. Longer
// declarations are treated as corrupt.
func (p *Parser) SetMaxStreamLength(n int64) {
	if n > 0 && n < hardStreamLimit {
		p.maxStream = n
	}
}

// Pos returns the offset of the current token, or of the end of input.
func (p *Parser) Pos() int64 {
	if p.currentToken != nil {
		return p.currentToken.Pos
	}
	return p.lexer.Pos()
}

// nextToken advances the parser to the next token by shifting the lookahead.
func (p *Parser) nextToken() {
	p.currentToken = p.peekToken

	// Binary data follows "stream"; parseStream reads it directly.
	if p.currentToken.Is("stream") {
		p.peekToken = nil
		return
	}

	token, err := p.lexer.NextToken()
	if err != nil {
		if p.lexErr == nil {
			p.lexErr = err
		}
		token = &Token{Type: TokenEOF, Pos: p.lexer.Pos()}
	}
	p.peekToken = token
}

// endOfInput returns the error to report when tokens run out.
func (p *Parser) endOfInput(context string) error {
	if p.lexErr != nil {
		return p.lexErr
	}
	if context == "" {
		return io.EOF
	}
	return FormatErrorf("unexpected end of input in %s", context)
}

// skipComments skips over any consecutive comment tokens.
func (p *Parser) skipComments() {
	for p.currentToken != nil && p.currentToken.Type == TokenComment {
		p.nextToken()
	}
}

// ParseObject parses and returns the next PDF object from the input.
// It handles all PDF object types: null, boolean, integer, real, string,
// name, array, dictionary, and indirect references.
func (p *Parser) ParseObject() (Object, error) {
	p.skipComments()

	if p.currentToken == nil || p.currentToken.Type == TokenEOF {
		return nil, p.endOfInput("")
	}

	switch p.currentToken.Type {
	case TokenKeyword:
		keyword := string(p.currentToken.Value)
		switch keyword {
		case "null":
			p.nextToken()
			return Null{}, nil
		case "true":
			p.nextToken()
			return Bool(true), nil
		case "false":
			p.nextToken()
			return Bool(false), nil
		default:
			return nil, FormatErrorf("unexpected keyword %q at position %d", keyword, p.currentToken.Pos)
		}

	case TokenInteger:
		return p.parseNumber()

	case TokenReal:
		val, err := strconv.ParseFloat(string(p.currentToken.Value), 64)
		if err != nil {
			return nil, FormatErrorf("invalid real number %q", p.currentToken.Value)
		}
		p.nextToken()
		return Real(val), nil

	case TokenString:
		val := string(p.currentToken.Value)
		p.nextToken()
		return String(val), nil

	case TokenHexString:
		hexStr := p.currentToken.Value
		result := make([]byte, (len(hexStr)+1)/2)
		for i := 0; i < len(hexStr); i += 2 {
			lo := byte('0') // odd length pads with 0
			if i+1 < len(hexStr) {
				lo = hexStr[i+1]
			}
			result[i/2] = hexValue(hexStr[i])<<4 | hexValue(lo)
		}
		p.nextToken()
		return String(result), nil

	case TokenName:
		val := string(p.currentToken.Value)
		p.nextToken()
		return Name(val), nil

	case TokenArrayStart:
		return p.parseArray()

	case TokenDictStart:
		return p.parseDict()

	default:
		return nil, FormatErrorf("unexpected token %q at position %d", p.currentToken.Value, p.currentToken.Pos)
	}
}

// parseNumber parses an integer, real number, or indirect reference.
// Indirect references are detected by lookahead: "num gen R" pattern.
func (p *Parser) parseNumber() (Object, error) {
	firstToken := string(p.currentToken.Value)

	firstInt, err := strconv.ParseInt(firstToken, 10, 64)
	if err != nil {
		// "+", "-", or out-of-range integers
		f, err := strconv.ParseFloat(firstToken, 64)
		if err != nil {
			return nil, FormatErrorf("invalid number %q", firstToken)
		}
		p.nextToken()
		return Real(f), nil
	}

	if p.peekToken != nil && p.peekToken.Type == TokenInteger {
		secondInt, err := strconv.ParseInt(string(p.peekToken.Value), 10, 64)
		if err == nil {
			p.nextToken() // second integer becomes current
			if p.peekToken != nil && p.peekToken.Type == TokenIndirectRef {
				p.nextToken() // R
				p.nextToken() // past R
				return IndirectRef{
					Number:     int(firstInt),
					Generation: int(secondInt),
				}, nil
			}
			// Not a reference; the second integer is left as the current token
			return Int(firstInt), nil
		}
	}

	p.nextToken()
	return Int(firstInt), nil
}

func (p *Parser) enter() error {
	p.depth++
	if p.depth > MaxNestingDepth {
		return fmt.Errorf("nesting deeper than %d: %w", MaxNestingDepth, ErrSecurityLimit)
	}
	return nil
}

// parseArray parses a PDF array "[obj1 obj2 ...]".
func (p *Parser) parseArray() (Object, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer func() { p.depth-- }()
	p.nextToken()

	arr := Array{}
	for {
		p.skipComments()
		if p.currentToken == nil || p.currentToken.Type == TokenEOF {
			return nil, p.endOfInput("array")
		}
		if p.currentToken.Type == TokenArrayEnd {
			p.nextToken()
			return arr, nil
		}

		obj, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("error parsing array element: %w", err)
		}
		arr = append(arr, obj)
	}
}

// parseDict parses a PDF dictionary "<< /Key value ... >>".
func (p *Parser) parseDict() (Object, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer func() { p.depth-- }()
	p.nextToken()

	dict := make(Dict)
	for {
		p.skipComments()
		if p.currentToken == nil || p.currentToken.Type == TokenEOF {
			return nil, p.endOfInput("dictionary")
		}
		if p.currentToken.Type == TokenDictEnd {
			p.nextToken()
			return dict, nil
		}

		if p.currentToken.Type != TokenName {
			return nil, FormatErrorf("expected name for dictionary key at position %d, got %q",
				p.currentToken.Pos, p.currentToken.Value)
		}
		key := string(p.currentToken.Value)
		p.nextToken()

		// a key directly followed by >> has a null value, same as absent
		if p.currentToken != nil && p.currentToken.Type == TokenDictEnd {
			continue
		}

		value, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("error parsing dictionary value for key '%s': %w", key, err)
		}
		// a null value is equivalent to an absent key
		if _, isNull := value.(Null); !isNull {
			dict[key] = value
		}
	}
}

// ParseIndirectObject parses an indirect object definition.
// Format: "num gen obj <object> endobj" or "num gen obj <dict> stream ... endstream endobj"
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	p.skipComments()
	if p.currentToken == nil || p.currentToken.Type == TokenEOF {
		return nil, p.endOfInput("indirect object")
	}
	start := p.currentToken.Pos

	num, err := p.expectInt("object number")
	if err != nil {
		return nil, err
	}
	gen, err := p.expectInt("generation number")
	if err != nil {
		return nil, err
	}
	if !p.currentToken.Is("obj") {
		return nil, FormatErrorf("expected 'obj' keyword at position %d", p.Pos())
	}
	p.nextToken()

	var obj Object
	if p.currentToken.Is("endobj") {
		// empty object body
		obj = Null{}
	} else {
		obj, err = p.ParseObject()
		if err != nil {
			return nil, &ObjectError{Num: num, Gen: gen, Op: "parse", Err: err}
		}
	}

	if p.currentToken.Is("stream") {
		dict, ok := obj.(Dict)
		if !ok {
			return nil, objErrf(num, gen, "parse", ErrFormat, "stream must follow a dictionary")
		}
		stream, err := p.parseStream(dict)
		if err != nil {
			return nil, &ObjectError{Num: num, Gen: gen, Op: "parse", Err: err}
		}
		obj = stream
	}

	if p.currentToken.Is("endobj") {
		p.nextToken()
	} else if !p.lenient {
		return nil, objErrf(num, gen, "parse", ErrFormat, "expected 'endobj' at position %d", p.Pos())
	}

	return &IndirectObject{
		Ref:    IndirectRef{Number: num, Generation: gen},
		Object: obj,
		Offset: start,
	}, nil
}

// expectInt consumes a non-negative integer token.
func (p *Parser) expectInt(what string) (int, error) {
	if p.currentToken == nil || p.currentToken.Type != TokenInteger {
		return 0, FormatErrorf("expected %s at position %d", what, p.Pos())
	}
	v, err := strconv.ParseInt(string(p.currentToken.Value), 10, 64)
	if err != nil || v < 0 {
		return 0, FormatErrorf("invalid %s %q", what, p.currentToken.Value)
	}
	p.nextToken()
	return int(v), nil
}

// parseStream parses a stream object after the "stream" keyword.
// It reads the binary data according to the /Length entry in the dictionary.
func (p *Parser) parseStream(dict Dict) (*Stream, error) {
	if err := p.lexer.SkipStreamEOL(); err != nil {
		return nil, FormatErrorf("failed to skip EOL after stream keyword: %v", err)
	}
	dataStart := p.lexer.Pos()

	var data []byte
	if p.lenient {
		var err error
		data, err = p.lexer.ReadUntilEndstream(p.maxStream)
		if err != nil {
			return nil, err
		}
	} else {
		length, err := p.streamLength(dict)
		if err != nil {
			return nil, err
		}
		data, err = p.lexer.ReadBytes(length)
		if err != nil {
			return nil, fmt.Errorf("failed to read stream data: %w", err)
		}
		token, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		if !token.Is("endstream") {
			return nil, FormatErrorf("expected 'endstream' after %d bytes of stream data, got %q", length, token.Value)
		}
	}

	// reload lookahead after the binary data
	p.currentToken = nil
	p.peekToken = nil
	p.nextToken()
	p.nextToken()

	return &Stream{
		Dict:       dict,
		Data:       data,
		DataOffset: dataStart,
	}, nil
}

// streamLength determines the declared data length of a stream.
func (p *Parser) streamLength(dict Dict) (int, error) {
	lengthObj := dict.Get("Length")
	var length int64
	switch v := lengthObj.(type) {
	case Int:
		length = int64(v)
	case IndirectRef:
		if p.resolver == nil {
			return 0, FormatErrorf("indirect stream length %s without resolver", v)
		}
		resolved, err := p.resolver.ResolveReference(v)
		if err != nil {
			if errors.Is(err, ErrRecursiveReference) || errors.Is(err, ErrIO) {
				return 0, err
			}
			return 0, FormatErrorf("failed to resolve stream length %s: %v", v, err)
		}
		resolvedInt, ok := resolved.(Int)
		if !ok {
			return 0, FormatErrorf("stream length %s resolved to %T", v, resolved)
		}
		length = int64(resolvedInt)
	case nil:
		return 0, FormatErrorf("stream dictionary missing 'Length' entry")
	default:
		return 0, FormatErrorf("invalid type for stream length: %T", lengthObj)
	}

	if length < 0 {
		return 0, FormatErrorf("invalid stream length: %d", length)
	}
	if length > p.maxStream {
		if p.maxStream == hardStreamLimit {
			return 0, fmt.Errorf("stream length %d: %w", length, ErrSecurityLimit)
		}
		return 0, FormatErrorf("stream length %d exceeds input size", length)
	}
	return int(length), nil
}
