// Package archive inspects, filters and extracts device diagnostic
// archives (tar+bzip2, tar+gzip, zip) without decompressing more than
// it has to.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// Format identifies a supported archive container.
type Format string

const (
	FormatTarBz2  Format = "tar.bz2"
	FormatTarGz   Format = "tar.gz"
	FormatZip     Format = "zip"
	FormatUnknown Format = ""
)

// Content signatures for the supported containers.
var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
	magicZip   = []byte("PK\x03\x04")
)

// formatFromExt resolves a format from the file name alone.
func formatFromExt(path string) Format {
	name := strings.ToLower(path)
	switch {
	case strings.HasSuffix(name, ".tar.bz2"), strings.HasSuffix(name, ".tbz2"), strings.HasSuffix(name, ".tbz"):
		return FormatTarBz2
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(name, ".zip"):
		return FormatZip
	}
	return FormatUnknown
}

// Sniff reads the first bytes of the file and resolves the format from
// the content signature.
func Sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return FormatUnknown, err
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, magicZip):
		return FormatZip, nil
	case bytes.HasPrefix(head, magicGzip):
		return FormatTarGz, nil
	case bytes.HasPrefix(head, magicBzip2):
		return FormatTarBz2, nil
	}
	return FormatUnknown, fmt.Errorf("unrecognized archive signature in %s", path)
}

// DetectFormat resolves the archive format, extension first, content
// signature as fallback. Callers must not assume the extension is
// truthful, so an extension verdict is still cross-checked against the
// signature when the two can disagree cheaply.
func DetectFormat(path string) (Format, error) {
	byExt := formatFromExt(path)
	bySig, sigErr := Sniff(path)

	if byExt == FormatUnknown {
		return bySig, sigErr
	}
	if sigErr == nil && bySig != byExt {
		// The content wins: extensions lie, magic bytes do not.
		return bySig, nil
	}
	return byExt, nil
}
