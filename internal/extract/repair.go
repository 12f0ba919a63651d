package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

var (
	fenceRe  = regexp.MustCompile("(?i)```(?:json|yaml)?")
	prefixRe = regexp.MustCompile(`(?i)^\s*(?:json|yaml)\s*:\s*`)
)

// stripFences removes code fences and a leading "json:" or "yaml:" label.
func stripFences(text string) string {
	text = fenceRe.ReplaceAllString(text, "")
	text = prefixRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// stripWrapping is stripFences plus dropping any text outside the chosen
// outermost object or array. Top-level bracket spans are tried in order:
// the first that parses wins, then the first that looks like JSON, then
// the first span. A bracketed word in a preamble ("[JSON]:") never beats
// the real payload.
func stripWrapping(text string) string {
	text = stripFences(text)
	spans := topLevelSpans(text)
	if len(spans) == 0 {
		return text
	}
	for _, sp := range spans {
		if json.Valid([]byte(sp)) {
			return sp
		}
	}
	for _, sp := range spans {
		if looksLikeJSON(sp) {
			return sp
		}
	}
	return spans[0]
}

// topLevelSpans returns each non-nested bracketed span of text. An
// unclosed span runs to the end of text.
func topLevelSpans(text string) []string {
	var spans []string
	for i := 0; i < len(text); {
		start := strings.IndexAny(text[i:], "{[")
		if start < 0 {
			break
		}
		start += i
		end := scanBrackets(text[start:]).end
		if end < 0 {
			spans = append(spans, text[start:])
			break
		}
		spans = append(spans, text[start:start+end+1])
		i = start + end + 1
	}
	return spans
}

// looksLikeJSON reports whether span opens an object, or an array whose
// first element is a JSON value rather than a bare word.
func looksLikeJSON(span string) bool {
	if span[0] == '{' {
		return true
	}
	inner := strings.TrimLeft(span[1:], " \t\r\n")
	if inner == "" {
		return false
	}
	return strings.IndexByte(`{["]-0123456789`, inner[0]) >= 0
}

// bracketScan is the string-aware bracket state of a JSON-ish text.
type bracketScan struct {
	stack    []byte // expected closers, innermost last
	inString bool
	escape   bool
	end      int // index where the first opened bracket closed, or -1
}

// scanBrackets walks text tracking strings and nesting. Closers that do
// not match the innermost open bracket are ignored.
func scanBrackets(text string) bracketScan {
	st := bracketScan{end: -1}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if st.escape {
			st.escape = false
			continue
		}
		if st.inString {
			switch c {
			case '\\':
				st.escape = true
			case '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
		case '{':
			st.stack = append(st.stack, '}')
		case '[':
			st.stack = append(st.stack, ']')
		case '}', ']':
			if n := len(st.stack); n > 0 && st.stack[n-1] == c {
				st.stack = st.stack[:n-1]
				if n == 1 && st.end < 0 {
					st.end = i
					return st
				}
			}
		}
	}
	return st
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isLiteralByte(c byte) bool {
	return c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// fixSeparators inserts missing commas between adjacent values and drops
// trailing, doubled or leading commas. String contents are never touched.
func fixSeparators(s string) string {
	var b, ws strings.Builder
	b.Grow(len(s) + 16)

	inString, escape := false, false
	prevValueEnd, pendingComma := false, false

	flush := func(comma bool) {
		if comma {
			b.WriteByte(',')
		}
		b.WriteString(ws.String())
		ws.Reset()
		pendingComma = false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
				prevValueEnd = true
			}
			continue
		}

		switch {
		case isSpace(c):
			ws.WriteByte(c)
		case c == ',':
			if !pendingComma && prevValueEnd {
				b.WriteString(ws.String())
				ws.Reset()
				pendingComma = true
			}
		case c == '}' || c == ']':
			flush(false)
			b.WriteByte(c)
			prevValueEnd = true
		case c == ':':
			flush(false)
			b.WriteByte(c)
			prevValueEnd = false
		case c == '{' || c == '[' || c == '"':
			flush(pendingComma || prevValueEnd)
			b.WriteByte(c)
			prevValueEnd = false
			inString = c == '"'
		case isLiteralByte(c):
			flush(pendingComma || prevValueEnd)
			j := i
			for j < len(s) && isLiteralByte(s[j]) {
				j++
			}
			b.WriteString(s[i:j])
			i = j - 1
			prevValueEnd = true
		default:
			flush(pendingComma)
			b.WriteByte(c)
			prevValueEnd = false
		}
	}
	flush(false)
	return b.String()
}

// closeTruncated closes an unterminated string and any unclosed brackets
// or braces, in nesting order.
func closeTruncated(text string) string {
	st := scanBrackets(text)
	if st.end >= 0 || (!st.inString && len(st.stack) == 0) {
		return text
	}
	var sb strings.Builder
	sb.WriteString(text)
	if st.escape {
		sb.WriteByte('\\')
	}
	if st.inString {
		sb.WriteByte('"')
	}
	for i := len(st.stack) - 1; i >= 0; i-- {
		sb.WriteByte(st.stack[i])
	}
	return sb.String()
}

// Repair applies every repair pass. Repair(Repair(x)) == Repair(x).
func Repair(text string) string {
	text = stripWrapping(text)
	text = fixSeparators(text)
	return strings.TrimSpace(closeTruncated(text))
}

// ErrUnparseable is returned when no repair pass yields a JSON value.
var ErrUnparseable = eris.New("unparseable model output")

// Decode parses model output into a generic JSON value. It tries a strict
// parse first, then up to maxAttempts-1 repair passes, then a YAML parse.
// It returns the number of JSON attempts used.
func Decode(text string, maxAttempts int) (any, int, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if strings.TrimSpace(text) == "" {
		return nil, 0, eris.Wrap(ErrUnparseable, "empty response")
	}

	passes := []func(string) string{
		strings.TrimSpace,
		stripWrapping,
		Repair,
	}
	if maxAttempts < len(passes) {
		passes = passes[:maxAttempts]
	}

	var lastErr error
	for i, pass := range passes {
		var v any
		err := json.Unmarshal([]byte(pass(text)), &v)
		if err == nil {
			return v, i + 1, nil
		}
		lastErr = err
	}

	// Comma insertion is JSON-specific, so plain YAML is tried unrepaired.
	for _, candidate := range []string{stripFences(text), Repair(text)} {
		var y any
		if err := yaml.Unmarshal([]byte(candidate), &y); err != nil {
			continue
		}
		switch v := normalizeYAML(y).(type) {
		case map[string]any, []any:
			return v, len(passes), nil
		}
	}
	return nil, len(passes), eris.Wrapf(ErrUnparseable, "%v", lastErr)
}

// normalizeYAML converts yaml.v3 output to the shapes encoding/json
// produces: string-keyed maps and float64 numbers.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeYAML(val)
			}
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	default:
		return v
	}
}
