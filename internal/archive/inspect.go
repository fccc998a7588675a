package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"time"
)

// Member is one logical file entry inside an archive. It is read from
// archive metadata only; payloads stay compressed.
type Member struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// ListMembers reads member metadata from the archive without
// decompressing payloads. For zip this walks the central directory;
// for tar containers the stream is decompressed but entry bodies are
// skipped.
func ListMembers(path string) ([]Member, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatZip:
		return listZipMembers(path)
	case FormatTarGz, FormatTarBz2:
		return listTarMembers(path, format)
	}
	return nil, fmt.Errorf("unsupported archive format for %s", path)
}

func listZipMembers(path string) ([]Member, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening zip %s: %w", path, err)
	}
	defer r.Close()

	members := make([]Member, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		members = append(members, Member{
			Path:    f.Name,
			ModTime: f.Modified,
			Size:    int64(f.CompressedSize64),
		})
	}
	return members, nil
}

func listTarMembers(path string, format Format) ([]Member, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tr, closer, err := newTarReader(f, format)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}

	var members []Member
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar header in %s: %w", path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		members = append(members, Member{
			Path:    hdr.Name,
			ModTime: hdr.ModTime,
			Size:    hdr.Size,
		})
	}
	return members, nil
}

// newTarReader wraps the compressed stream with the right decompressor.
// The returned closer is non-nil only when it needs closing separately
// from the underlying file.
func newTarReader(r io.Reader, format Format) (*tar.Reader, io.Closer, error) {
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return tar.NewReader(gz), gz, nil
	case FormatTarBz2:
		return tar.NewReader(bzip2.NewReader(r)), nil, nil
	}
	return nil, nil, fmt.Errorf("not a tar container: %s", format)
}
