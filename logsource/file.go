package logsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/proy1234/prplMesh/devices"
)

// File reads logs from a collection directory laid out as <dir>/<device>/<log>.log, which is how
// log files are gathered from a rig after a run.
type File struct {
	dir string
}

func NewFile(dir string) *File {
	return &File{dir: dir}
}

// Path returns the file that holds a log.
func (f *File) Path(device devices.DeviceType, log devices.LogType) string {
	return filepath.Join(f.dir, device.String(), log.FileName())
}

func (f *File) Log(_ context.Context, device devices.DeviceType, log devices.LogType) (string, error) {
	data, err := os.ReadFile(f.Path(device, log))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", notFound(device, log)
		}
		return "", err
	}
	return string(data), nil
}

func (f *File) Append(_ context.Context, device devices.DeviceType, log devices.LogType, line string) error {
	path := f.Path(device, log)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(file, line); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
