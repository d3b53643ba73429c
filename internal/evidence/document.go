package evidence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Category documents look like
//
//	{"category":"storage","version":3,"components":{"s3_encryption":{...},...}}
//
// Components are patched in place on the raw bytes so entries a merge does
// not touch keep their exact serialization.

const componentsKey = "components"

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateName checks a category or component name.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// NewDocument returns the initial document for a category.
func NewDocument(category string) []byte {
	cat, _ := json.Marshal(category)
	return []byte(`{"category":` + string(cat) + `,"version":0,"components":{}}`)
}

// MergeComponent returns a copy of doc with the entry for component replaced
// wholesale by result. All other bytes of doc are preserved. doc may be nil,
// in which case an empty document without a category is used. doc itself is
// never modified.
func MergeComponent(doc []byte, component string, result *Result) ([]byte, error) {
	if err := ValidateName(component); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &MalformedResultError{Component: component, Err: errors.New("nil result")}
	}

	entry := *result
	entry.Component = component
	raw, err := json.Marshal(&entry)
	if err != nil {
		return nil, &MalformedResultError{Component: component, Err: err}
	}

	if len(doc) == 0 {
		doc = []byte(`{"components":{}}`)
	}
	if !gjson.ValidBytes(doc) {
		return nil, errors.New("evidence: stored document is not valid JSON")
	}

	out, err := sjson.SetRawBytes(bytes.Clone(doc), componentPath(component), raw)
	if err != nil {
		return nil, fmt.Errorf("patch component %q: %w", component, err)
	}
	return out, nil
}

// Components returns each component's raw entry keyed by name.
func Components(doc []byte) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	gjson.GetBytes(doc, componentsKey).ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = json.RawMessage(v.Raw)
		return true
	})
	return out
}

// Component decodes a single component entry.
func Component(doc []byte, component string) (*Result, bool, error) {
	v := gjson.GetBytes(doc, componentPath(component))
	if !v.Exists() {
		return nil, false, nil
	}
	var r Result
	if err := json.Unmarshal([]byte(v.Raw), &r); err != nil {
		return nil, false, fmt.Errorf("decode component %q: %w", component, err)
	}
	return &r, true, nil
}

// DocumentVersion returns the version stamped in doc, 0 when absent.
func DocumentVersion(doc []byte) int64 {
	return gjson.GetBytes(doc, "version").Int()
}

// DocumentCategory returns the category stamped in doc.
func DocumentCategory(doc []byte) string {
	return gjson.GetBytes(doc, "category").String()
}

func setVersion(doc []byte, version int64) ([]byte, error) {
	return sjson.SetBytes(doc, "version", version)
}

func componentPath(component string) string {
	return componentsKey + "." + escapePath(component)
}

// escapePath escapes characters gjson/sjson treat as path syntax.
func escapePath(s string) string {
	if !strings.ContainsAny(s, `.*?\|#@`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '.', '*', '?', '\\', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
