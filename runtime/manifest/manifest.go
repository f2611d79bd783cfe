// Package manifest defines the serializable pipeline description and its
// strict-mode parsers for YAML and JSON.
package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// versionRe matches the manifest version string format, e.g. "v1", "v12".
var versionRe = regexp.MustCompile(`^v\d+$`)

// SupportedVersions is the engine's currently supported manifest version
// constraint. Kept as a constraint (not a fixed equality) so the engine can
// widen the supported range across releases without touching every call
// site that checks it.
var SupportedVersions = mustConstraint(">=1, <=1")

func mustConstraint(c string) *semver.Constraints {
	parsed, err := semver.NewConstraint(c)
	if err != nil {
		panic(fmt.Sprintf("manifest: invalid built-in version constraint %q: %v", c, err))
	}
	return parsed
}

// Metadata describes a manifest's non-structural fields.
type Metadata struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	CreatedAt   *time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
}

// NodeSpec is one manifest-declared node instance.
type NodeSpec struct {
	ID        string         `yaml:"id" json:"id"`
	NodeType  string         `yaml:"node_type" json:"node_type"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Streaming *bool          `yaml:"streaming,omitempty" json:"streaming,omitempty"`
}

// ConnectionSpec is one manifest-declared directed edge between two nodes'
// ports. Empty FromPort/ToPort mean "the node's single default port".
type ConnectionSpec struct {
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
	FromPort string `yaml:"from_port,omitempty" json:"from_port,omitempty"`
	ToPort   string `yaml:"to_port,omitempty" json:"to_port,omitempty"`
}

// Manifest is the parsed, not-yet-validated pipeline description.
type Manifest struct {
	Version     string           `yaml:"version" json:"version"`
	Metadata    Metadata         `yaml:"metadata" json:"metadata"`
	Nodes       []NodeSpec       `yaml:"nodes" json:"nodes"`
	Connections []ConnectionSpec `yaml:"connections" json:"connections"`
}

// ParseYAML decodes a manifest document in strict mode: unknown fields at
// any level are rejected rather than silently ignored.
func ParseYAML(raw []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest: parse yaml: %w", err)
	}
	return &m, nil
}

// ParseJSON decodes a manifest document in strict mode: unknown fields at
// any level are rejected rather than silently ignored.
func ParseJSON(raw []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest: parse json: %w", err)
	}
	return &m, nil
}

// CheckVersion reports whether m.Version matches the `v\d+` format and
// falls within the engine's supported version constraint.
func (m *Manifest) CheckVersion() error {
	if !versionRe.MatchString(m.Version) {
		return fmt.Errorf("manifest: version %q does not match v\\d+", m.Version)
	}
	major := m.Version[1:]
	v, err := semver.NewVersion(major)
	if err != nil {
		return fmt.Errorf("manifest: version %q is not a valid version: %w", m.Version, err)
	}
	if !SupportedVersions.Check(v) {
		return fmt.Errorf("manifest: version %q is not supported (supported: %s)", m.Version, SupportedVersions)
	}
	return nil
}

// CanonicalJSON serializes the manifest to key-sorted JSON with no
// insignificant whitespace. encoding/json already marshals map keys in
// sorted order, so round-tripping through a generic map[string]any yields a
// canonical form without a bespoke canonicalizer.
func (m *Manifest) CanonicalJSON() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal for canonicalization: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("manifest: re-decode for canonicalization: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal canonical form: %w", err)
	}
	return canonical, nil
}

// Hash returns the hex-encoded SHA-256 of the manifest's canonical JSON
// form. Two manifests with identical canonical hashes are guaranteed to
// produce identical Plans; this is the Plan cache key.
func (m *Manifest) Hash() (string, error) {
	canonical, err := m.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
