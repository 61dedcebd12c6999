package vos

import (
	"errors"
	"io/fs"
	"syscall"
)

// ErrNotDirectory is returned when a path that must name a directory doesn't.
var ErrNotDirectory = errors.New("not a directory")

// DescribeError gives the message a shell prints for a filesystem error. The
// operation and path are dropped, the caller already names the file.
func DescribeError(err error) string {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "No such file or directory"
	case errors.Is(err, fs.ErrPermission):
		return "Permission denied"
	case errors.Is(err, ErrNotDirectory), errors.Is(err, syscall.ENOTDIR):
		return "Not a directory"
	default:
		return err.Error()
	}
}
