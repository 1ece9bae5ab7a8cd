package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source reads raw case records for the modules found under one root
// directory. A module is a subdirectory; its files are read in name order.
type Source interface {
	Kind() string
	Root() string
	Modules() ([]string, error)
	Files(module string) ([]string, error)
	// Read returns the module's common section and records. Problems confined
	// to one record or file come back in the error slice; the final error is
	// reserved for failures that make the whole module unreadable.
	Read(module string) (Common, []Record, []error, error)
}

// NewSource picks a source by driver name.
func NewSource(driver, yamlDir, excelDir string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "yaml", "yml":
		return NewYAMLSource(yamlDir), nil
	case "excel", "xlsx":
		return NewExcelSource(excelDir), nil
	}
	return nil, fmt.Errorf("unknown data driver %q (use yaml or excel)", driver)
}

func listModules(root string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading data directory %s: %w", root, err)
	}
	var modules []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files, err := listFiles(filepath.Join(root, e.Name()), exts...)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			modules = append(modules, e.Name())
		}
	}
	sort.Strings(modules)
	return modules, nil
}

func listFiles(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading module directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Fingerprint hashes the names and contents of a module's files.
func Fingerprint(src Source, module string) (string, error) {
	files, err := src.Files(module)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00", filepath.Base(f))
		file, err := os.Open(f)
		if err != nil {
			return "", fmt.Errorf("fingerprinting %s: %w", f, err)
		}
		_, err = io.Copy(h, file)
		_ = file.Close()
		if err != nil {
			return "", fmt.Errorf("fingerprinting %s: %w", f, err)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
