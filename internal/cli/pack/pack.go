// Package pack builds and inspects test data packs on the local disk.
package pack

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codearena/internal/judge/model"
	"codearena/internal/judge/repository"
)

// Build packs every NNN.in/NNN.out pair under dir into out and returns the
// number of cases. Cases are ordered by their numeric stem.
func Build(dir, out string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read case dir failed: %w", err)
	}
	var stems []int
	names := make(map[int]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".in") {
			continue
		}
		stem := strings.TrimSuffix(name, ".in")
		n, err := strconv.Atoi(stem)
		if err != nil {
			return 0, fmt.Errorf("case file %s: stem is not a number", name)
		}
		if _, dup := names[n]; dup {
			return 0, fmt.Errorf("case %d appears twice", n)
		}
		names[n] = stem
		stems = append(stems, n)
	}
	if len(stems) == 0 {
		return 0, fmt.Errorf("no .in files in %s", dir)
	}
	sort.Ints(stems)

	cases := make([]model.TestCase, 0, len(stems))
	for _, n := range stems {
		stem := names[n]
		input, err := os.ReadFile(filepath.Join(dir, stem+".in"))
		if err != nil {
			return 0, fmt.Errorf("read %s.in failed: %w", stem, err)
		}
		expected, err := os.ReadFile(filepath.Join(dir, stem+".out"))
		if err != nil {
			return 0, fmt.Errorf("case %s has no expected output: %w", stem, err)
		}
		cases = append(cases, model.TestCase{Input: string(input), ExpectedOutput: string(expected)})
	}

	data, err := repository.EncodeDataPack(cases)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return 0, fmt.Errorf("write data pack failed: %w", err)
	}
	return len(cases), nil
}

// Summary describes one case of a pack.
type Summary struct {
	Index       int
	InputBytes  int
	OutputBytes int
}

// Inspect decodes the pack at path.
func Inspect(path string) ([]Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data pack failed: %w", err)
	}
	cases, err := repository.DecodeDataPack(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out := make([]Summary, len(cases))
	for i, tc := range cases {
		out[i] = Summary{Index: i + 1, InputBytes: len(tc.Input), OutputBytes: len(tc.ExpectedOutput)}
	}
	return out, nil
}
