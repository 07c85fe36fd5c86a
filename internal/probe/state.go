package probe

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// loadState reads the per-game last-reported timestamps. A missing
// file is an empty state, not an error.
func loadState(path string) (map[string]time.Time, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, err
	}

	state := map[string]time.Time{}
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// saveState writes the state atomically via a rename so a crash
// mid-write cannot corrupt the throttle file.
func saveState(path string, state map[string]time.Time) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
