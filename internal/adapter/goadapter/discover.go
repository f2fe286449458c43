package goadapter

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/veriflow-labs/veriflow-go/internal/adapter"
	"github.com/veriflow-labs/veriflow-go/internal/domain"
)

// Discover inspects the repository tree and reports the detected Go
// stack. A tree without go.mod fails the stage: the remaining stages
// have nothing to work on.
func (a *Adapter) Discover(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	modulePath, goVersion, err := readGoMod(filepath.Join(sc.RepoPath, "go.mod"))
	if err != nil {
		return adapter.Failed("read go.mod: %v", err)
	}

	sourceFiles, testFiles := countGoFiles(sc.RepoPath)

	metrics := domain.Metadata{
		"language":     "go",
		"module":       modulePath,
		"go_version":   goVersion,
		"source_files": sourceFiles,
		"test_files":   testFiles,
	}
	if _, err := os.Stat(filepath.Join(sc.RepoPath, "cmd")); err == nil {
		metrics["has_cmd"] = true
	}
	if _, err := os.Stat(filepath.Join(sc.RepoPath, "internal")); err == nil {
		metrics["has_internal"] = true
	}

	return adapter.StepResult{
		Status:  domain.StepCompleted,
		Metrics: metrics,
		Message: "detected go module " + modulePath,
	}
}

func readGoMod(path string) (modulePath, goVersion string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "module "); ok && modulePath == "" {
			modulePath = strings.TrimSpace(rest)
		}
		if rest, ok := strings.CutPrefix(line, "go "); ok && goVersion == "" {
			goVersion = strings.TrimSpace(rest)
		}
	}
	return modulePath, goVersion, scanner.Err()
}

func countGoFiles(root string) (source, tests int) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if name == "vendor" || name == ".git" || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".go") {
			return nil
		}
		if strings.HasSuffix(d.Name(), "_test.go") {
			tests++
		} else {
			source++
		}
		return nil
	})
	return source, tests
}
