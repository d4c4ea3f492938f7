// Package pep691 implements PEP 691 -- JSON-based Simple API for Python
// Package Indexes; the wire types of the project detail response.
//
// https://www.python.org/dev/peps/pep-0691/
package pep691

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProjectDetail is the body of an
// "application/vnd.pypi.simple.v1+json" project page.
type ProjectDetail struct {
	Meta  Meta   `json:"meta"`
	Name  string `json:"name"`
	Files []File `json:"files"`
}

type Meta struct {
	APIVersion string `json:"api-version"`
}

// File is one downloadable file of a project.
type File struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Hashes         map[string]string `json:"hashes"`
	RequiresPython string            `json:"requires-python"`
	// Yanked is false, true, or a non-empty reason string.
	Yanked Yanked `json:"yanked"`
	// CoreMetadata is false, true, or a hash-name-to-digest mapping; the
	// older spelling "data-dist-info-metadata" is accepted too.
	CoreMetadata         *Metadata  `json:"core-metadata"`
	DataDistInfoMetadata *Metadata  `json:"data-dist-info-metadata"`
	UploadTime           *IndexTime `json:"upload-time"`
	Size                 int64      `json:"size"`
}

// MetadataHashes returns the core-metadata annotation under either of its
// spellings: nil if absent or false, an empty map for a bare true, else the
// digest mapping.
func (f File) MetadataHashes() map[string]string {
	for _, m := range []*Metadata{f.CoreMetadata, f.DataDistInfoMetadata} {
		if m != nil && m.Available {
			if m.Hashes != nil {
				return m.Hashes
			}
			return map[string]string{}
		}
	}
	return nil
}

// Yanked normalizes the PEP 592 "yanked" field: a boolean true becomes an
// empty-string reason, consistent with the HTML API's attribute-presence
// semantics.
type Yanked struct {
	Reason *string
}

func (y *Yanked) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case nil:
		y.Reason = nil
	case bool:
		if val {
			reason := ""
			y.Reason = &reason
		} else {
			y.Reason = nil
		}
	case string:
		if val == "" {
			y.Reason = nil
		} else {
			y.Reason = &val
		}
	default:
		return fmt.Errorf("pep691: yanked: expected bool or string, got %T", raw)
	}
	return nil
}

// Metadata is a bool-or-mapping field.
type Metadata struct {
	Available bool
	Hashes    map[string]string
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var asBool bool
	if err := json.Unmarshal(data, &asBool); err == nil {
		m.Available = asBool
		m.Hashes = nil
		return nil
	}
	var asMap map[string]string
	if err := json.Unmarshal(data, &asMap); err != nil {
		return fmt.Errorf("pep691: metadata: expected bool or object: %w", err)
	}
	m.Available = true
	m.Hashes = asMap
	return nil
}

// IndexTime is an ISO-8601 timestamp; a "Z" suffix is the UTC offset.
type IndexTime struct {
	time.Time
}

func (t *IndexTime) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, str); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("pep691: invalid upload-time: %q", str)
}

// ParseProjectDetail parses a project page body.
func ParseProjectDetail(content []byte) (*ProjectDetail, error) {
	var ret ProjectDetail
	if err := json.Unmarshal(content, &ret); err != nil {
		return nil, fmt.Errorf("pep691: %w", err)
	}
	return &ret, nil
}
