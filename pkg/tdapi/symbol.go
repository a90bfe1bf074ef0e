package tdapi

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SecurityType classifies a symbol for request building.
type SecurityType int

const (
	SecurityTypeOther SecurityType = iota
	SecurityTypeEquity
	SecurityTypeOption
)

// String returns the API name of the security type.
func (t SecurityType) String() string {
	switch t {
	case SecurityTypeEquity:
		return "EQUITY"
	case SecurityTypeOption:
		return "OPTION"
	default:
		return "OTHER"
	}
}

// MarshalText lets SecurityType render as its API name in JSON output.
func (t SecurityType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParsedSymbol is a symbol translated to the form the API expects.
type ParsedSymbol struct {
	Type SecurityType `json:"type"`
	Wire string       `json:"symbol"`
}

// SymbolParseError is returned for option-style input whose expiration
// date cannot be located.
type SymbolParseError struct {
	Symbol string
	Reason string
}

func (e *SymbolParseError) Error() string {
	return fmt.Sprintf("cannot parse symbol %q: %s", e.Symbol, e.Reason)
}

// optionDateLen is the length of the YYMMDD expiration in a dotted option symbol.
const optionDateLen = 6

// ClassifySymbol converts a human symbol into wire format and classifies it.
//
//	"aapl"             -> EQUITY "AAPL"
//	".AAPL210528C126"  -> OPTION "AAPL_052821C126"
//	"AAPL_052821C126"  -> OPTION unchanged
//	"./ESZ23"          -> OTHER  "/ESZ23"
//
// Dotted option symbols locate the YYMMDD date at the first '2' after the
// dot, so an underlying that itself contains a '2' is split in the wrong
// place. Futures ("./...") only lose the leading dot.
func ClassifySymbol(raw string) (ParsedSymbol, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))

	if symbol == "" {
		return ParsedSymbol{Type: SecurityTypeOther, Wire: symbol}, nil
	}

	if symbol[0] == '.' && len(symbol) >= 2 {
		rest := symbol[1:]
		if rest[0] == '/' {
			return ParsedSymbol{Type: SecurityTypeOther, Wire: rest}, nil
		}

		idx := strings.IndexByte(rest, '2')
		if idx < 0 {
			return ParsedSymbol{}, &SymbolParseError{Symbol: raw, Reason: "no expiration date found"}
		}
		if idx+optionDateLen > len(rest) {
			return ParsedSymbol{}, &SymbolParseError{Symbol: raw, Reason: "expiration date is truncated"}
		}

		date := rest[idx : idx+optionDateLen]
		var b strings.Builder
		b.Grow(len(rest) + 1)
		b.WriteString(rest[:idx])
		b.WriteByte('_')
		b.WriteString(date[2:]) // MMDD
		b.WriteString(date[:2]) // YY
		b.WriteString(rest[idx+optionDateLen:])

		return ParsedSymbol{Type: SecurityTypeOption, Wire: b.String()}, nil
	}

	if strings.Contains(symbol, "_") {
		return ParsedSymbol{Type: SecurityTypeOption, Wire: symbol}, nil
	}

	if r, _ := utf8.DecodeRuneInString(symbol); unicode.IsLetter(r) {
		return ParsedSymbol{Type: SecurityTypeEquity, Wire: symbol}, nil
	}

	return ParsedSymbol{Type: SecurityTypeOther, Wire: symbol}, nil
}

// ParseSymbols converts every symbol to wire format.
func ParseSymbols(symbols []string) ([]string, error) {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		parsed, err := ClassifySymbol(s)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed.Wire)
	}
	return out, nil
}

// ParseSymbolList converts a comma-separated list to wire format.
func ParseSymbolList(list string) (string, error) {
	parsed, err := ParseSymbols(strings.Split(list, ","))
	if err != nil {
		return "", err
	}
	return strings.Join(parsed, ","), nil
}
