package manifest

import (
	"bytes"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/cratesig/pkg/errors"
)

const (
	// CrateTypeStatic is the only crate type left after patching.
	CrateTypeStatic = "staticlib"

	// PanicAbort is the release panic strategy set when none is declared.
	PanicAbort = "abort"
)

// Manifest is a decoded Cargo.toml document.
type Manifest map[string]any

// Decode parses Cargo.toml content.
func Decode(data []byte) (Manifest, error) {
	m := Manifest{}
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode Cargo.toml")
	}
	return m, nil
}

// Encode serializes m back to TOML. Keys are written in sorted order, so
// equal manifests always encode to equal bytes.
func Encode(m Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(map[string]any(m)); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "encode Cargo.toml")
	}
	return buf.Bytes(), nil
}

// Patch returns a copy of m that builds as a static library with
// panic = "abort" in release builds. m itself is not modified.
func Patch(m Manifest) (Manifest, error) {
	out := copyMap(m)

	lib, err := table(out, "lib")
	if err != nil {
		return nil, err
	}
	lib["crate-type"] = []string{CrateTypeStatic}

	profile, err := table(out, "profile")
	if err != nil {
		return nil, err
	}
	release, err := table(profile, "release")
	if err != nil {
		return nil, err
	}
	if _, ok := release["panic"]; !ok {
		release["panic"] = PanicAbort
	}
	return Manifest(out), nil
}

// PatchFile patches the manifest at path in place and returns the patched
// document.
func PatchFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", path)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	patched, err := Patch(m)
	if err != nil {
		return nil, err
	}
	out, err := Encode(patched)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "write %s", path)
	}
	return patched, nil
}

// LibName returns the library target name cargo uses for artifact file
// names: lib.name when declared, otherwise package.name with dashes
// replaced by underscores. Empty if neither is present.
func LibName(m Manifest) string {
	if lib, ok := m["lib"].(map[string]any); ok {
		if name, ok := lib["name"].(string); ok && name != "" {
			return name
		}
	}
	if pkg, ok := m["package"].(map[string]any); ok {
		if name, ok := pkg["name"].(string); ok {
			return strings.ReplaceAll(name, "-", "_")
		}
	}
	return ""
}

// table returns m[key] as a table, creating it when absent.
func table(m map[string]any, key string) (map[string]any, error) {
	v, ok := m[key]
	if !ok {
		t := map[string]any{}
		m[key] = t
		return t, nil
	}
	t, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "%s is not a table", key)
	}
	return t, nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return copyMap(v)
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, t := range v {
			out[i] = copyMap(t)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
