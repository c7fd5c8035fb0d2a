package stream

import (
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DataPrefix tags lines that carry an event payload.
const DataPrefix = "data:"

var (
	// ErrInvalidPayload is reported for payloads that are not valid JSON.
	ErrInvalidPayload = errors.New("invalid payload json")

	// ErrNotObject is reported for valid JSON payloads that are not objects.
	ErrNotObject = errors.New("payload is not an object")

	// ErrFieldType is reported when "error" or "content" is not a string or
	// "done" is not a boolean.
	ErrFieldType = errors.New("payload field has wrong type")
)

// MalformedFunc receives frames that carried the data prefix but could not
// be parsed. It is the diagnostic side channel; it never affects the event
// stream.
type MalformedFunc func(line string, err error)

// Translator maps decoded lines to normalized events.
type Translator struct {
	now         func() time.Time
	onMalformed MalformedFunc
}

// TranslatorOption configures a Translator.
type TranslatorOption func(*Translator)

// WithClock sets the time source used to stamp ContentDelta events.
func WithClock(now func() time.Time) TranslatorOption {
	return func(t *Translator) { t.now = now }
}

// WithMalformedHandler sets the diagnostic callback for unparseable frames.
func WithMalformedHandler(fn MalformedFunc) TranslatorOption {
	return func(t *Translator) { t.onMalformed = fn }
}

// NewTranslator returns a Translator using the wall clock and discarding
// diagnostics unless configured otherwise.
func NewTranslator(opts ...TranslatorOption) *Translator {
	t := &Translator{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate returns the event carried by line, if any. It never fails:
// comments, keepalives, empty payloads and heartbeats yield no event, and
// malformed payloads are handed to the diagnostic callback and dropped.
//
// A payload whose "error" or "content" is not a string, or whose "done" is
// not a boolean, is malformed; null counts as absent. Fields are checked in
// a fixed order. A non-empty "error" wins over "done", and both win over
// "content".
func (t *Translator) Translate(line string) (Event, bool) {
	body, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return nil, false
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, false
	}

	if !gjson.Valid(body) {
		t.malformed(line, ErrInvalidPayload)
		return nil, false
	}
	payload := gjson.Parse(body)
	if !payload.IsObject() {
		t.malformed(line, ErrNotObject)
		return nil, false
	}

	errField, done, content := payload.Get("error"), payload.Get("done"), payload.Get("content")
	if !hasType(errField, gjson.String) || !hasType(content, gjson.String) ||
		!(hasType(done, gjson.True) || hasType(done, gjson.False)) {
		t.malformed(line, ErrFieldType)
		return nil, false
	}

	if errField.Str != "" {
		return Failed{Reason: errField.Str}, true
	}
	if done.Type == gjson.True {
		return Completed{
			SessionID: payload.Get("session_id").String(),
			UserID:    payload.Get("user_id").String(),
		}, true
	}
	if content.Str != "" {
		return ContentDelta{Text: content.Str, Timestamp: t.now()}, true
	}
	return nil, false
}

// hasType reports whether r is absent, null or of type want.
func hasType(r gjson.Result, want gjson.Type) bool {
	return !r.Exists() || r.Type == gjson.Null || r.Type == want
}

func (t *Translator) malformed(line string, err error) {
	if t.onMalformed != nil {
		t.onMalformed(line, err)
	}
}
