// Package fermi extracts the Fermi energy from VASP OUTCAR-style text.
package fermi

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/bandfit/internal/fsutil"
)

// Tag marks the line carrying the Fermi energy, e.g.
//
//	E-fermi :   5.1234     XC(G=0):  -8.5160     alpha+bet : -6.3787
const Tag = "E-fermi"

// NotFoundError reports that no tagged line was present in the source.
type NotFoundError struct {
	Source string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fermi energy not found: no line containing %q in %s", Tag, e.Source)
}

// Find returns the Fermi energy from the first line of r containing Tag.
// source names r in error messages.
func Find(r io.Reader, source string) (float64, error) {
	scanner := bufio.NewScanner(r)
	// OUTCAR lines are short, but allow for long ones elsewhere in the file.
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		_, rest, ok := strings.Cut(scanner.Text(), Tag)
		if !ok {
			continue
		}
		// The value is the first field after the colon following the tag,
		// which may be written without surrounding spaces.
		_, value, ok := strings.Cut(rest, ":")
		if !ok {
			return 0, fmt.Errorf("%s:%d: no colon after %s", source, line, Tag)
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return 0, fmt.Errorf("%s:%d: no value after %s", source, line, Tag)
		}
		ef, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, fmt.Errorf("%s:%d: failed to parse fermi energy: %w", source, line, err)
		}
		return ef, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return 0, &NotFoundError{Source: source}
}

// FindFile opens path on fsys and calls Find.
func FindFile(fsys fsutil.FileSystem, path string) (float64, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Find(f, path)
}
