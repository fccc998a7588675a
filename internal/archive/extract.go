package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extract unpacks the archive into destDir, preserving relative paths.
// Entries that would escape destDir are skipped.
func Extract(path, destDir string) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}

	switch format {
	case FormatZip:
		return extractZip(path, destDir)
	case FormatTarGz, FormatTarBz2:
		return extractTar(path, format, destDir)
	}
	return fmt.Errorf("unsupported archive format for %s", path)
}

func extractZip(path, destDir string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("opening zip %s: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest, ok := safeJoin(destDir, f.Name)
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(dest, rc)
		rc.Close()
		if err != nil {
			return err
		}
		os.Chtimes(dest, f.Modified, f.Modified)
	}
	return nil
}

func extractTar(path string, format Format, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	tr, closer, err := newTarReader(f, format)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream of %s: %w", path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		dest, ok := safeJoin(destDir, hdr.Name)
		if !ok {
			continue
		}
		if err := writeFile(dest, tr); err != nil {
			return err
		}
		os.Chtimes(dest, hdr.ModTime, hdr.ModTime)
	}
}

// safeJoin joins name under root and rejects traversal outside it.
func safeJoin(root, name string) (string, bool) {
	dest := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return dest, true
}

func writeFile(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FindPayloads locates log payloads in an extracted tree, ordered by
// modification time then path so rotated segments replay in sequence.
// Compressed rotated segments (.gz/.bz2) are included; OpenPayload
// decompresses them transparently.
func FindPayloads(root string) ([]string, error) {
	var payloads []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isLogPayload(d.Name()) {
			payloads = append(payloads, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("no log payload found under %s", root)
	}

	type stamped struct {
		path string
		mod  int64
	}
	st := make([]stamped, len(payloads))
	for i, p := range payloads {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		st[i] = stamped{path: p, mod: info.ModTime().UnixNano()}
	}
	sort.Slice(st, func(i, j int) bool {
		if st[i].mod != st[j].mod {
			return st[i].mod < st[j].mod
		}
		return st[i].path < st[j].path
	})
	for i := range st {
		payloads[i] = st[i].path
	}
	return payloads, nil
}

// isLogPayload recognizes the device log naming conventions, including
// rotated and nested-compressed segments.
func isLogPayload(name string) bool {
	n := strings.ToLower(name)
	for _, suffix := range []string{".gz", ".bz2"} {
		n = strings.TrimSuffix(n, suffix)
	}
	if strings.HasSuffix(n, ".log") || strings.HasSuffix(n, ".txt") {
		return true
	}
	base := filepath.Base(n)
	return strings.HasPrefix(base, "messages") || strings.HasPrefix(base, "syslog")
}

// OpenPayload opens a payload file, transparently decompressing nested
// gzip or bzip2 segments. The caller owns the returned ReadCloser.
func OpenPayload(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening nested gzip %s: %w", path, err)
		}
		return &payloadReader{Reader: gz, closers: []io.Closer{gz, f}}, nil
	case strings.HasSuffix(strings.ToLower(path), ".bz2"):
		return &payloadReader{Reader: bzip2.NewReader(f), closers: []io.Closer{f}}, nil
	}
	return f, nil
}

type payloadReader struct {
	io.Reader
	closers []io.Closer
}

func (p *payloadReader) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
