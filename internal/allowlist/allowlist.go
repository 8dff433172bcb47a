// Package allowlist reads the access list file: whitespace-separated keys,
// each the decimal facility code followed by the decimal card code.
package allowlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Load reads the allow-list at path.  The returned keys are in file order
// with duplicates removed.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open access list: %w", err)
	}
	defer f.Close()

	keys, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read access list %s: %w", path, err)
	}
	return keys, nil
}

// Parse reads whitespace-separated keys from r.  Keys are kept verbatim:
// "013" and "13" are different entries.
func Parse(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	seen := make(map[string]struct{})
	var keys []string
	for sc.Scan() {
		k := sc.Text()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
