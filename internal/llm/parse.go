package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/nao1215/univcrawl/internal/model"
)

// maxRepairCuts bounds how many trailing elements repair drops from a
// truncated answer before giving up.
const maxRepairCuts = 8

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json|JSON)?\\s*(.*?)\\s*```$")

// ParseObject decodes the model text into v.
//
// The text is first decoded as strict JSON (after removing a Markdown code
// fence), which yields model.OutcomeSuccess. If that fails, a repaired copy
// is decoded and model.OutcomeRepaired is returned. Repair extracts the
// outermost JSON value and fixes comments, single quotes, bare keys,
// Python literals, trailing commas and truncated endings. If nothing
// decodes, the error is an *model.LLMParseError.
func ParseObject(text string, v any) (model.Outcome, error) {
	body := stripCodeBlock(text)
	strictErr := json.Unmarshal([]byte(body), v)
	if strictErr == nil {
		return model.OutcomeSuccess, nil
	}

	candidate := body
	for range maxRepairCuts {
		repaired := repairJSON(candidate)
		if repaired != "" && json.Valid([]byte(repaired)) {
			if err := json.Unmarshal([]byte(repaired), v); err == nil {
				return model.OutcomeRepaired, nil
			}
		}
		cut := strings.LastIndexByte(candidate, ',')
		if cut < 0 {
			break
		}
		candidate = candidate[:cut]
	}
	return model.OutcomeDefault, &model.LLMParseError{RawText: truncate(text, 500), Err: strictErr}
}

// IsRetryable reports whether err is worth another model call.
// Parse errors are retryable because the model may answer differently.
func IsRetryable(err error) bool {
	var te *model.LLMTransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	var pe *model.LLMParseError
	return errors.As(err, &pe)
}

func transportError(status int, retryable bool, err error) error {
	return &model.LLMTransportError{StatusCode: status, Retryable: retryable, Err: err}
}

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// repairJSON rewrites almost-JSON into JSON. It returns "" when s holds no
// object or array at all.
func repairJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	s = s[start:]

	var (
		out   []byte
		stack []byte
		inStr bool
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case c == '\\' && i+1 < len(s):
				i++
				if quote == '\'' && s[i] == '\'' {
					out = append(out, '\'')
				} else {
					out = append(out, c, s[i])
				}
			case c == quote:
				out = append(out, '"')
				inStr = false
			case c == '"':
				out = append(out, '\\', '"')
			case c == '\n':
				out = append(out, '\\', 'n')
			case c == '\r', c == '\t':
				out = append(out, ' ')
			default:
				out = append(out, c)
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			inStr = true
			quote = c
			out = append(out, '"')
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
				i += j - 1
			} else {
				i = len(s)
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			if j := strings.Index(s[i+2:], "*/"); j >= 0 {
				i += j + 3
			} else {
				i = len(s)
			}
		case c == '{' || c == '[':
			stack = append(stack, c)
			out = append(out, c)
		case c == '}' || c == ']':
			if len(stack) == 0 {
				return string(out)
			}
			out = trimTrailingComma(out)
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if open == '{' {
				out = append(out, '}')
			} else {
				out = append(out, ']')
			}
			if len(stack) == 0 {
				return string(out)
			}
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			if len(out) > 0 && (isDigit(out[len(out)-1]) || out[len(out)-1] == '.') {
				// exponent of a number such as 1e5
				out = append(out, s[i:j]...)
				i = j - 1
				continue
			}
			switch word := s[i:j]; word {
			case "true", "True":
				out = append(out, "true"...)
			case "false", "False":
				out = append(out, "false"...)
			case "null", "None", "undefined":
				out = append(out, "null"...)
			default:
				out = append(out, '"')
				out = append(out, word...)
				out = append(out, '"')
			}
			i = j - 1
		default:
			out = append(out, c)
		}
	}

	if inStr {
		out = append(out, '"')
	}
	out = trimTrailingComma(out)
	if trimmed := strings.TrimRight(string(out), " \t\r\n"); strings.HasSuffix(trimmed, ":") {
		out = append([]byte(trimmed), "null"...)
	}
	for k := len(stack) - 1; k >= 0; k-- {
		out = trimTrailingComma(out)
		if stack[k] == '{' {
			out = append(out, '}')
		} else {
			out = append(out, ']')
		}
	}
	return string(out)
}

func trimTrailingComma(b []byte) []byte {
	end := len(b)
	for end > 0 && strings.IndexByte(" \t\r\n", b[end-1]) >= 0 {
		end--
	}
	if end > 0 && b[end-1] == ',' {
		return b[:end-1]
	}
	return b
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
