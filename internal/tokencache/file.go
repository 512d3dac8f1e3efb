package tokencache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// readFile loads a token list from path. A missing file is reported as
// domain.ErrNotFound.
func readFile(path string) (domain.TokenList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.TokenList{}, fmt.Errorf("tokencache: read %s: %w", path, domain.ErrNotFound)
		}
		return domain.TokenList{}, fmt.Errorf("tokencache: read %s: %w", path, err)
	}

	var list domain.TokenList
	if err := json.Unmarshal(data, &list); err != nil {
		return domain.TokenList{}, fmt.Errorf("tokencache: decode %s: %w", path, domain.ErrParse)
	}
	if list.Tokens == nil {
		list.Tokens = []domain.Token{}
	}
	list.TotalCount = len(list.Tokens)
	return list, nil
}

// writeFile persists list atomically: the JSON is written to a temp file in the
// target directory, synced, then renamed over path.
func writeFile(path string, list domain.TokenList) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("tokencache: encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tokencache: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("tokencache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokencache: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokencache: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokencache: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("tokencache: rename: %w", err)
	}
	return nil
}
