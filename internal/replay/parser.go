package replay

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/refinery/internal/hermes"
	"github.com/MikeSquared-Agency/refinery/internal/processor"
)

// ParseFile reads a JSONL file of call.completed records, one per line.
// Blank lines are skipped. Invalid lines are returned as errors alongside the
// calls that did parse.
func ParseFile(path string) ([]processor.Call, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var (
		calls   []processor.Call
		badLine []error
		lineNo  int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		evt, err := hermes.ParseCallCompleted(line)
		if err != nil {
			badLine = append(badLine, fmt.Errorf("%s:%d: %w", filepath.Base(path), lineNo, err))
			continue
		}
		if evt.CallID == "" {
			evt.CallID = fmt.Sprintf("%s:%d", filepath.Base(path), lineNo)
		}
		calls = append(calls, processor.CallFromEvent(evt))
	}
	if err := scanner.Err(); err != nil {
		return calls, badLine, fmt.Errorf("scan: %w", err)
	}
	return calls, badLine, nil
}

// DiscoverFiles lists *.jsonl files under dir, sorted by path.
func DiscoverFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
