package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrSampleNotFound is returned by FindSample for an unknown name.
var ErrSampleNotFound = errors.New("sample not found")

// Sample describes a preset data file.
type Sample struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// DiscoverSamples lists the readable files directly under dir, sorted by name.
// A missing directory yields an empty list.
func DiscoverSamples(dir string) ([]Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sample dir: %w", err)
	}
	var out []Sample
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Sample{Name: e.Name(), Path: filepath.Join(dir, e.Name()), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindSample resolves a sample by file name.
func FindSample(dir, name string) (Sample, error) {
	samples, err := DiscoverSamples(dir)
	if err != nil {
		return Sample{}, err
	}
	for _, s := range samples {
		if s.Name == name {
			return s, nil
		}
	}
	return Sample{}, fmt.Errorf("%w: %q in %s", ErrSampleNotFound, name, dir)
}
