package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/diaglog/backend/internal/timeutil"
)

// DefaultReductionThreshold is the minimum fraction of members that
// filtering must drop before the smaller archive is worth building.
const DefaultReductionThreshold = 0.20

// FilterOptions tunes the time-range pre-filter. The constants are
// performance tunables, not correctness requirements.
type FilterOptions struct {
	ReductionThreshold float64 // minimum reduction ratio, default 0.20
	TempDir            string  // defaults to os.TempDir()
}

// FilterByWindow builds a smaller archive holding only the members
// whose modification time falls inside the buffered window. It returns
// the path to use for parsing and whether that path is a temporary
// archive the caller must delete.
//
// Filtering is strictly an optimization: on any failure, an empty
// selection, or a reduction below the threshold the original path is
// returned unchanged and no error is surfaced.
func FilterByWindow(path string, win timeutil.Window, opts FilterOptions) (string, bool) {
	if win.IsZero() {
		return path, false
	}
	threshold := opts.ReductionThreshold
	if threshold == 0 {
		threshold = DefaultReductionThreshold
	}

	format, err := DetectFormat(path)
	if err != nil {
		return path, false
	}
	members, err := ListMembers(path)
	if err != nil || len(members) == 0 {
		return path, false
	}

	buffered := win.Buffered()
	selected := make(map[string]bool, len(members))
	for _, m := range members {
		if buffered.Contains(m.ModTime) {
			selected[m.Path] = true
		}
	}

	reduction := 1 - float64(len(selected))/float64(len(members))
	if len(selected) == 0 || reduction < threshold {
		return path, false
	}

	out, err := rebuildArchive(path, format, selected, opts.TempDir)
	if err != nil {
		if out != "" {
			os.Remove(out)
		}
		return path, false
	}
	return out, true
}

// rebuildArchive copies the selected members into a new archive,
// preserving internal relative paths. Tar inputs are rewritten as
// tar+gzip regardless of the source compression; zip stays zip.
func rebuildArchive(path string, format Format, selected map[string]bool, tempDir string) (string, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	switch format {
	case FormatZip:
		return rebuildZip(path, selected, tempDir)
	case FormatTarGz, FormatTarBz2:
		return rebuildTarGz(path, format, selected, tempDir)
	}
	return "", fmt.Errorf("unsupported format %s", format)
}

func rebuildZip(path string, selected map[string]bool, tempDir string) (string, error) {
	src, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(tempDir, "filtered-*.zip")
	if err != nil {
		return "", err
	}
	outPath := tmp.Name()

	zw := zip.NewWriter(tmp)
	for _, f := range src.File {
		if !selected[f.Name] {
			continue
		}
		hdr := f.FileHeader
		w, err := zw.CreateHeader(&hdr)
		if err != nil {
			tmp.Close()
			return outPath, err
		}
		rc, err := f.Open()
		if err != nil {
			tmp.Close()
			return outPath, err
		}
		_, err = io.Copy(w, rc)
		rc.Close()
		if err != nil {
			tmp.Close()
			return outPath, err
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return outPath, err
	}
	return outPath, tmp.Close()
}

func rebuildTarGz(path string, format Format, selected map[string]bool, tempDir string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	tr, closer, err := newTarReader(src, format)
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}

	tmp, err := os.CreateTemp(tempDir, "filtered-*.tar.gz")
	if err != nil {
		return "", err
	}
	outPath := tmp.Name()

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			tmp.Close()
			return outPath, err
		}
		if hdr.Typeflag != tar.TypeReg || !selected[hdr.Name] {
			continue
		}
		if err := tw.WriteHeader(hdr); err != nil {
			tmp.Close()
			return outPath, err
		}
		if _, err := io.Copy(tw, tr); err != nil {
			tmp.Close()
			return outPath, err
		}
	}

	if err := tw.Close(); err != nil {
		tmp.Close()
		return outPath, err
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return outPath, err
	}
	return outPath, tmp.Close()
}
