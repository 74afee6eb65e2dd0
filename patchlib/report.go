package patchlib

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/ngfw-tools/ngpatch/fwimage"
	"gopkg.in/yaml.v3"
)

// Report describes a patching session: which image went in, what came out, and
// every change in between.
type Report struct {
	Tool    string            `json:"tool,omitempty" yaml:"tool,omitempty"`
	Model   string            `json:"model,omitempty" yaml:"model,omitempty"`
	Input   string            `json:"input,omitempty" yaml:"input,omitempty"`
	Before  *fwimage.Checksum `json:"before,omitempty" yaml:"before,omitempty"`
	After   *fwimage.Checksum `json:"after,omitempty" yaml:"after,omitempty"`
	Applied []string          `json:"applied,omitempty" yaml:"applied,omitempty"`
	Failed  []string          `json:"failed,omitempty" yaml:"failed,omitempty"`
	Records []Record          `json:"records" yaml:"records"`
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// ReadReport reads a report written as JSON or YAML. A bare list of records is
// also accepted.
func ReadReport(r io.Reader) (*Report, error) {
	buf, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	var rpt Report
	switch t := bytes.TrimSpace(buf); {
	case bytes.HasPrefix(t, []byte("[")):
		if err := json.Unmarshal(t, &rpt.Records); err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
	case bytes.HasPrefix(t, []byte("{")):
		dec := json.NewDecoder(bytes.NewReader(t))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rpt); err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
	default:
		var n yaml.Node
		if err := yaml.Unmarshal(t, &n); err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		if len(n.Content) == 0 {
			return nil, fmt.Errorf("read report: empty document")
		}
		if n = *n.Content[0]; n.Kind == yaml.SequenceNode {
			err = n.DecodeStrict(&rpt.Records)
		} else {
			err = n.DecodeStrict(&rpt)
		}
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
	}
	return &rpt, nil
}

// Verify checks that buf is the image the report was produced from (patched
// false) or the image it produced (patched true). Checksums missing from the
// report are not checked.
func (r *Report) Verify(buf []byte, patched bool) error {
	c, which := r.Before, "original"
	if patched {
		c, which = r.After, "patched"
	}
	if c == nil {
		return nil
	}
	if got := fwimage.Sum(buf); got != *c {
		return fmt.Errorf("image does not match the %s image of the report: expected %s, got %s", which, c, got)
	}
	return nil
}

func (r *Report) String() string {
	var sb strings.Builder
	if r.Model != "" {
		fmt.Fprintf(&sb, "model: %s\n", r.Model)
	}
	if r.Before != nil {
		fmt.Fprintf(&sb, "before: %s\n", r.Before)
	}
	if r.After != nil {
		fmt.Fprintf(&sb, "after: %s\n", r.After)
	}
	for _, rec := range r.Records {
		fmt.Fprintf(&sb, "  %s\n", rec)
	}
	return sb.String()
}
