package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
)

// PersistedState is the document written to the state file.
type PersistedState struct {
	Devices map[string]fingerprint.Fingerprint `json:"devices"`
}

// FileStore keeps all fingerprints in a single JSON document. Every write
// replaces the file atomically through a temp file and rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Get(_ context.Context, deviceID string) (fingerprint.Fingerprint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := LoadState(f.path)
	if err != nil {
		return fingerprint.Fingerprint{}, false, err
	}
	if state == nil {
		return fingerprint.Fingerprint{}, false, nil
	}
	fp, ok := state.Devices[deviceID]
	return fp, ok, nil
}

func (f *FileStore) Put(_ context.Context, deviceID string, fp fingerprint.Fingerprint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := LoadState(f.path)
	if err != nil {
		return err
	}
	if state == nil {
		state = &PersistedState{}
	}
	if state.Devices == nil {
		state.Devices = make(map[string]fingerprint.Fingerprint)
	}
	state.Devices[deviceID] = fp
	return SaveState(f.path, state)
}

func (f *FileStore) Close() error {
	return nil
}

// SaveState writes state to path atomically.
func SaveState(path string, state *PersistedState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to state file: %w", err)
	}

	return nil
}

// LoadState reads the persisted state from disk.
// Returns nil, nil if the file does not exist.
func LoadState(path string) (*PersistedState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var persisted PersistedState
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("unmarshal state file: %w", err)
	}

	return &persisted, nil
}
