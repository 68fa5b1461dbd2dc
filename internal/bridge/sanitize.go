package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// fenceToken matches a markdown fence delimiter with an optional language
// tag. Only the delimiter is removed; fenced content stays as is.
var fenceToken = regexp.MustCompile("```[A-Za-z0-9_+-]*")

// StripFences removes code-fence delimiters and trims surrounding whitespace.
func StripFences(text string) string {
	return strings.TrimSpace(fenceToken.ReplaceAllString(text, ""))
}

// CaptureArray returns the substring from the first '[' to the last ']',
// or false when there is no such pair. Nested or unbalanced brackets are
// not inspected.
func CaptureArray(text string) (string, bool) {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(text, ']')
	if end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseStage records which step produced a result.
type ParseStage int

const (
	StageStrict ParseStage = iota
	StageFallback
)

func (s ParseStage) String() string {
	if s == StageFallback {
		return "fallback"
	}
	return "strict"
}

// Parse sanitizes raw model output and decodes it as an array of records,
// first strictly and then from the bracket capture. A failure is a
// KindParse *Error; no partial result is ever returned.
//
// Every element must be a JSON object: arrays of scalars such as [1,2,3]
// or arrays holding null are rejected. Keys and value types inside the
// objects are not checked.
func Parse(raw string) (Records, ParseStage, error) {
	text := StripFences(raw)

	records, strictErr := decodeArray(text)
	if strictErr == nil {
		return records, StageStrict, nil
	}

	candidate, ok := CaptureArray(text)
	if !ok {
		return nil, StageStrict, parseError(strictErr)
	}

	records, err := decodeArray(candidate)
	if err != nil {
		return nil, StageFallback, parseError(err)
	}
	return records, StageFallback, nil
}

var errTrailingData = errors.New("unexpected data after JSON value")

// decodeArray is a strict decode: one JSON array of objects and nothing else.
func decodeArray(text string) (Records, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var out Records
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	if out == nil {
		return nil, errors.New("JSON value is null, want an array")
	}
	for i, r := range out {
		if r == nil {
			return nil, fmt.Errorf("element %d is null, want an object", i)
		}
	}
	return out, nil
}

// Encode renders records as compact JSON. Record keys are emitted in sorted
// order, so identical records always encode to identical bytes.
func (rs Records) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rs); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
