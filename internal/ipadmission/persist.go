package ipadmission

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// fileStore persists the whole IP record map as one TOML file
// (ip_stats.toml), top-level table "ips", sub-tables keyed by IP string.
type fileStore struct {
	path string
}

func (f *fileStore) load() (map[string]*Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*Record), nil
		}
		return nil, err
	}

	var doc ipFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.IPs == nil {
		doc.IPs = make(map[string]*Record)
	}
	for _, rec := range doc.IPs {
		if rec.ModelsUsed == nil {
			rec.ModelsUsed = make(map[string]int64)
		}
		if rec.Endpoints == nil {
			rec.Endpoints = make(map[string]int64)
		}
	}
	return doc.IPs, nil
}

func (f *fileStore) save(records map[string]*Record) error {
	doc := ipFile{IPs: records}
	data, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	return writeAtomic(f.path, data)
}

// loadBanOperations reads ban_operations.toml, top-level table "operators".
func loadBanOperations(path string) (BanOperations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return BanOperations{Operators: make(map[string][]float64)}, nil
		}
		return BanOperations{}, err
	}
	var ops BanOperations
	if err := toml.Unmarshal(data, &ops); err != nil {
		return BanOperations{}, err
	}
	if ops.Operators == nil {
		ops.Operators = make(map[string][]float64)
	}
	return ops, nil
}

func saveBanOperations(path string, ops BanOperations) error {
	data, err := toml.Marshal(ops)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
