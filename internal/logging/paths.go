package logging

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const logFileName = "server.log"

// DefaultLogDir is ~/.bulletinsearch/logs, or the same under the temp
// directory when there is no home.
func DefaultLogDir() string {
	base, err := os.UserHomeDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, ".bulletinsearch", "logs")
}

// DefaultLogPath is the log file written by serve, search and index.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), logFileName)
}

// FindLogFile resolves the file for `bulletinsearch logs`: explicit when
// set, DefaultLogPath otherwise. The file must exist.
func FindLogFile(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		if explicit != "" {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return "", fmt.Errorf("no log file found. Run `bulletinsearch serve` or a search first.\nExpected at: %s", path)
	}
	return path, nil
}

// RotatedFiles lists the existing files of the log at path, oldest first:
// path.N down to path.1, then path itself.
func RotatedFiles(path string) []string {
	var out []string
	for _, f := range rotatedSiblings(path) {
		out = append(out, f.path)
	}
	if _, err := os.Stat(path); err == nil {
		out = append(out, path)
	}
	return out
}

type rotatedFile struct {
	path string
	num  int
}

// rotatedSiblings lists path.N files, highest N first. Suffixes that are
// not positive integers are ignored.
func rotatedSiblings(path string) []rotatedFile {
	matches, _ := filepath.Glob(path + ".*")

	files := make([]rotatedFile, 0, len(matches))
	for _, m := range matches {
		if num, err := strconv.Atoi(strings.TrimPrefix(m, path+".")); err == nil && num > 0 {
			files = append(files, rotatedFile{path: m, num: num})
		}
	}
	slices.SortFunc(files, func(a, b rotatedFile) int { return cmp.Compare(b.num, a.num) })
	return files
}
