package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparsable marks model output that is not a JSON object even after
// local repair. Callers decide whether to escalate to a model-assisted
// repair call.
var ErrUnparsable = errors.New("model response is not a JSON object")

// ParseObject parses model output as a JSON object, stripping markdown code
// fences first. Non-object top-level values fail.
func ParseObject(text string) (map[string]any, error) {
	text = stripFences(text)
	if text == "" {
		return nil, fmt.Errorf("empty response: %w", ErrUnparsable)
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return obj, nil
}

// ParseWithRepair parses text, applying RepairText if the initial parse
// fails. Already-valid input is never altered.
func ParseWithRepair(text string) (map[string]any, error) {
	obj, err := ParseObject(text)
	if err == nil {
		return obj, nil
	}
	return ParseObject(RepairText(stripFences(text)))
}

// RepairText applies conservative structural repair to broken JSON text:
// dangling trailing commas before closing brackets are dropped, an
// unterminated string literal is closed, and missing closing brackets are
// appended when openers outnumber closers. Typical truncated or
// trailing-comma model output becomes parseable; structurally confused
// output stays broken.
func RepairText(text string) string {
	s := strings.TrimSpace(text)
	s = stripTrailingCommas(s)
	return closeOpenBrackets(s)
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}

// stripTrailingCommas drops commas that directly precede a closing bracket,
// ignoring string literal content.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closeOpenBrackets appends closers for unclosed brackets, in reverse
// nesting order. An unterminated trailing string is closed first.
func closeOpenBrackets(s string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
