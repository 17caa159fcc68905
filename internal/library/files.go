package library

import (
	"os"
	"regexp"
	"strings"
	"syscall"

	"golang.org/x/text/unicode/norm"

	"github.com/magicianjarden/audiio-official-sub003/internal/apperrors"
	"github.com/magicianjarden/audiio-official-sub003/internal/config"
)

// maxStemLength bounds a sanitized filename stem, leaving headroom for the
// extension and the temp suffix within common 255-byte name limits.
const maxStemLength = 150

// illegalFilenameChars matches characters that are unsafe in a filename on
// at least one supported filesystem, plus control characters.
var illegalFilenameChars = regexp.MustCompile(`[\x00-\x1f/\\:*?"<>|]`)

// SanitizeFilenameStem makes a request's filename stem safe to place on
// disk: it normalizes to NFC, strips illegal characters, collapses runs of
// whitespace to single spaces, trims surrounding dots and spaces, and bounds
// the length. An empty result falls back to "untitled".
func SanitizeFilenameStem(stem string) string {
	s := norm.NFC.String(stem)
	s = illegalFilenameChars.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, ". ")

	if runes := []rune(s); len(runes) > maxStemLength {
		s = strings.Trim(string(runes[:maxStemLength]), ". ")
	}

	if s == "" {
		return "untitled"
	}
	return s
}

// SanitizeExtension makes a request's file extension safe to append to a
// sanitized stem: illegal characters and whitespace are stripped and a single
// leading dot is enforced. An empty or dot-only input stays empty.
func SanitizeExtension(ext string) string {
	s := illegalFilenameChars.ReplaceAllString(ext, "")
	s = strings.Join(strings.Fields(s), "")
	s = strings.Trim(s, ".")
	if s == "" {
		return ""
	}
	return "." + s
}

// EnsureDir creates the directory and any missing parents.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return apperrors.NewFilesystemError("mkdir", path, err)
	}
	return nil
}

// HasEnoughSpace reports whether the filesystem holding path has at least
// requiredBytes available. A filesystem that cannot be stat'd skips the
// check rather than failing the transfer.
func HasEnoughSpace(path string, requiredBytes int64) bool {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		logger := config.GetLogger()
		logger.Warn().Err(err).Str("path", path).Msg("Failed to stat filesystem, skipping free space check")
		return true
	}
	available := stat.Bavail * uint64(stat.Bsize)
	return available >= uint64(requiredBytes)
}
