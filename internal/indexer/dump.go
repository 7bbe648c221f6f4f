package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/fsindex/pkg/types"
)

const dumpTimeLayout = "2006-01-02_15_04_05"

// dumpFileName returns the name of the failed batch dump written at t
func dumpFileName(t time.Time) string {
	return "fsindex-failed-documents-" + t.Format(dumpTimeLayout) + ".json"
}

// dumpBatch writes docs as a JSON array into dir and returns the file path
func dumpBatch(dir string, t time.Time, docs []types.Document) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, dumpFileName(t))

	data, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("failed to encode failed documents: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
