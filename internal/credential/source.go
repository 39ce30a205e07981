package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const credentialFileExt = ".json"

// FileSource loads and persists credentials as one JSON file per id under a
// directory, atomically rewritten on every save (tmp + rename), mirroring
// the on-disk layout the upstream CLI tooling already uses.
type FileSource struct {
	Dir string
}

// LoadAll reads every *.json file in the directory and parses it as a
// Credential. A missing directory yields an empty, non-error result.
func (f *FileSource) LoadAll() ([]*Credential, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), credentialFileExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	creds := make([]*Credential, 0, len(names))
	for _, name := range names {
		path := filepath.Join(f.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var c Credential
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}
		if c.ID == "" {
			c.ID = strings.TrimSuffix(name, credentialFileExt)
		}
		if c.ErrorCounts == nil {
			c.ErrorCounts = make(map[int]int64)
		}
		creds = append(creds, &c)
	}
	return creds, nil
}

func (f *FileSource) path(id string) string {
	return filepath.Join(f.Dir, id+credentialFileExt)
}

// Save atomically rewrites the credential's file.
func (f *FileSource) Save(c *Credential) error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	tmp := f.path(c.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path(c.ID))
}

// Delete removes the credential's file. Missing files are not an error.
func (f *FileSource) Delete(id string) error {
	err := os.Remove(f.path(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
