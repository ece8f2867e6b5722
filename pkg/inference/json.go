package inference

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON returns the JSON object inside a model reply. It prefers a
// fenced code block and falls back to the outermost braces.
func ExtractJSON(text string) (string, bool) {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		if s := strings.TrimSpace(m[1]); strings.HasPrefix(s, "{") {
			return s, true
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 {
		return "", false
	}
	if end < start {
		// Truncated output; let repair close it.
		return text[start:], true
	}
	return text[start : end+1], true
}

// ParseJSONObject decodes the JSON object of a model reply into v, repairing
// malformed JSON before giving up.
func ParseJSONObject(text string, v any) error {
	raw, ok := ExtractJSON(text)
	if !ok {
		return ErrNoJSON
	}
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(raw)
	if rerr != nil {
		return errors.Join(err, rerr)
	}
	return json.Unmarshal([]byte(fixed), v)
}
