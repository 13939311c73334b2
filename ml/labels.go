package ml

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// LabelTable is the ordered list of class names; index i names output channel i.
type LabelTable []string

// LoadLabels reads a label file from disk. See ParseLabels for the format.
func LoadLabels(path string) (LabelTable, error) {
	//nolint:gosec
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "cannot open label file")
	}
	defer func() {
		//nolint:errcheck
		f.Close()
	}()
	labels, err := ParseLabels(f)
	if err != nil {
		return nil, errors.Wrapf(err, "label file %q", path)
	}
	return labels, nil
}

// ParseLabels reads one label per line. If the input has a single line it is split by commas,
// and failing that by spaces. Blank lines and surrounding whitespace are ignored.
func ParseLabels(r io.Reader) (LabelTable, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 1 {
		labels = strings.Split(labels[0], ",")
	}
	if len(labels) == 1 {
		labels = strings.Split(labels[0], " ")
	}
	labels = lo.FilterMap(labels, func(l string, _ int) (string, bool) {
		l = strings.TrimSpace(l)
		return l, l != ""
	})
	table := LabelTable(labels)
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate checks that the table is non-empty and has no duplicate or blank names.
func (l LabelTable) Validate() error {
	if len(l) == 0 {
		return errors.New("label table is empty")
	}
	for i, name := range l {
		if strings.TrimSpace(name) == "" {
			return errors.Errorf("label %d is blank", i)
		}
	}
	if dups := lo.FindDuplicates(l); len(dups) > 0 {
		return errors.Errorf("duplicate labels %v", dups)
	}
	return nil
}

// Label returns the name for index i, or the index itself when the table does not cover it.
func (l LabelTable) Label(i int) string {
	if i >= 0 && i < len(l) {
		return l[i]
	}
	return strconv.Itoa(i)
}
