package resultstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dchest/uniuri"
)

// Config covers the optional S3 mirror. The local folder and overwrite policy belong to
// the whisper client config.
type Config struct {
	MirrorToS3 bool   `yaml:"mirror_to_s3"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
}

// Local writes results below Root. Absolute keys bypass Root, the content type is not
// kept on disk.
type Local struct {
	Root  string
	Erase bool
}

func NewLocal(root string, erase bool) *Local {
	return &Local{
		Root:  root,
		Erase: erase,
	}
}

func (l *Local) Path(key string) string {
	if filepath.IsAbs(key) {
		return key
	}

	return filepath.Join(l.Root, key)
}

func (l *Local) Write(ctx context.Context, key, _ string, data []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path := l.Path(key)

	if !l.Erase {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create result folder: %w", err)
	}

	tmp := path + ".tmp-" + uniuri.NewLen(8)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write result file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("failed to move result file in place: %w", err)
	}

	return true, nil
}
