// Package archive unpacks .crate source archives.
//
// A .crate file is a gzip-compressed tarball whose entries all live under a
// single {name}-{version}/ directory. [ExtractCrate] unpacks it into a shared
// working directory and returns the resulting [SourceTree]. Nothing is ever
// cleaned up; re-extracting over an existing tree overwrites files in place.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/cratesig/pkg/errors"
)

// ManifestName is the build manifest file name inside a crate.
const ManifestName = "Cargo.toml"

// SourceTree is an extracted crate.
type SourceTree struct {
	Dir          string // {dest}/{name}-{version}
	ManifestPath string // {Dir}/Cargo.toml
}

// ExtractCrate unpacks archivePath into destDir and returns the
// {name}-{version} tree it produced. A corrupt archive, an entry escaping
// destDir or a missing tree directory yield an EXTRACT_FAILED error.
func ExtractCrate(archivePath, destDir, name, version string) (*SourceTree, error) {
	if err := extractTarGz(archivePath, destDir); err != nil {
		return nil, errors.Wrap(errors.ErrCodeExtract, err, "unpack %s", filepath.Base(archivePath))
	}

	dir := filepath.Join(destDir, fmt.Sprintf("%s-%s", name, version))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, errors.New(errors.ErrCodeExtract, "archive %s did not contain %s", filepath.Base(archivePath), filepath.Base(dir))
	}
	return &SourceTree{Dir: dir, ManifestPath: filepath.Join(dir, ManifestName)}, nil
}

func extractTarGz(path, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gzr.Close()

	root := filepath.Clean(destDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		target := filepath.Join(root, hdr.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			// Symlinks and special files are not part of published crates.
		}
	}
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
