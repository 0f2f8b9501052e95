package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadJSONL loads a dataset from a JSON Lines file: one JSON object per
// line, blank lines skipped.
func LoadJSONL(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %q: %w", path, err)
	}
	defer f.Close()

	var rows []Row

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var row Row
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("dataset: parse %q line %d: %w", path, lineNum, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read %q: %w", path, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("dataset: %q contains no rows", path)
	}
	return New(rows)
}
