// Package jsonx normalizes possibly multiply-stringified JSON payloads.
package jsonx

import "encoding/json"

// DefaultMaxDepth bounds how many nested string-encodings DeepParse unwraps.
const DefaultMaxDepth = 3

// DeepParse resolves a value that may be JSON encoded one or more times.
//
// Non-string values are already structured and pass through unchanged. A
// string is parsed as JSON repeatedly while the result is itself a string,
// up to maxDepth attempts. A parse failure on the first attempt means the
// input was never JSON and yields nil. A failure on a later attempt means
// the previous round produced a JSON-encoded plain string, which is
// returned as-is. Exhausting the depth budget returns the last parsed
// value regardless of its type.
func DeepParse(value any, maxDepth int) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	current := s
	for attempt := 0; attempt < maxDepth; attempt++ {
		var parsed any
		if err := json.Unmarshal([]byte(current), &parsed); err != nil {
			if attempt == 0 {
				return nil
			}
			return current
		}
		next, isString := parsed.(string)
		if !isString {
			return parsed
		}
		current = next
	}
	return current
}

// DeepParseDefault applies DeepParse with DefaultMaxDepth.
func DeepParseDefault(value any) any {
	return DeepParse(value, DefaultMaxDepth)
}
