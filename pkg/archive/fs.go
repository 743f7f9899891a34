package archive

import (
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const metadataSuffix = ".meta.json"

// FSStore keeps objects as files below a base directory. Metadata is written
// next to each object as a JSON file.
type FSStore struct {
	base string
}

func NewFSStore(base string) (*FSStore, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, errors.Wrapf(err, "Unable to create archive directory %s", base)
	}

	return &FSStore{base: base}, nil
}

func (s *FSStore) path(key string) (string, error) {
	path := filepath.Join(s.base, filepath.FromSlash(key))

	rel, err := filepath.Rel(s.base, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", errors.Errorf("invalid object key %q", key)
	}

	return path, nil
}

// Put writes into a temporary file first and renames it into place so that
// a half-written object is never listed.
func (s *FSStore) Put(_ context.Context, key string, body io.Reader, metadata map[string]string) (err error) {
	dst, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := ioutil.TempFile(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(out.Name())
		}
	}()

	if _, err = io.Copy(out, body); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	if err = ioutil.WriteFile(dst+metadataSuffix, meta, 0644); err != nil {
		return err
	}

	return os.Rename(out.Name(), dst)
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(path + metadataSuffix); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// Metadata returns what was stored along with the object.
func (s *FSStore) Metadata(key string) (map[string]string, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	contents, err := ioutil.ReadFile(path + metadataSuffix)
	if err != nil {
		return nil, err
	}

	var metadata map[string]string
	if err := json.Unmarshal(contents, &metadata); err != nil {
		return nil, errors.Wrapf(err, "Malformed metadata of %s", key)
	}

	return metadata, nil
}

func (s *FSStore) List(_ context.Context, prefix string) ([]Object, error) {
	var objects []Object

	err := filepath.Walk(s.base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		name := info.Name()
		if info.IsDir() || strings.HasSuffix(name, metadataSuffix) || strings.HasPrefix(name, ".upload-") {
			return nil
		}

		rel, err := filepath.Rel(s.base, path)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		objects = append(objects, Object{
			Key:          key,
			LastModified: info.ModTime(),
			Size:         info.Size(),
		})

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "Unable to walk archive directory")
	}

	return objects, nil
}
