package executor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/HerbHall/hsnap/pkg/probe"
)

func (e *Executor) readFiles(s probe.FileRead) probe.Result {
	if s.Pattern == "" {
		return probe.Failed(s, probe.ExecutionError, errors.New("executor: empty file pattern"))
	}

	paths := []string{s.Pattern}
	if s.IsGlob() {
		matches, err := filepath.Glob(s.Pattern)
		if err != nil {
			return probe.Failed(s, probe.ExecutionError, fmt.Errorf("glob %q: %w", s.Pattern, err))
		}
		if len(matches) == 0 {
			return probe.Failed(s, probe.NotFound, fmt.Errorf("no files match %q: %w", s.Pattern, fs.ErrNotExist))
		}
		sort.Strings(matches)
		paths = matches
	}

	remaining := e.maxOutput
	files := make([]probe.File, 0, len(paths))
	for _, p := range paths {
		content, err := readFile(p, remaining)
		if err != nil {
			return probe.Failed(s, classify(err), err)
		}
		remaining -= int64(len(content))
		files = append(files, probe.File{Path: p, Content: content})
	}
	return probe.Result{Spec: s, Files: files}
}

// readFile reads at most limit bytes; a larger file is an error, never a
// truncated read.
func readFile(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrOutputTooLarge, path, limit)
	}
	return data, nil
}
