//go:build !windows

package localfile

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/memomind/internal/errors"
)

func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot write to symlink")
		}
		return nil, errors.NewInvalidRequest("cannot open file: " + err.Error())
	}
	return os.NewFile(uintptr(fd), path), nil
}

func openNoFollowRead(path string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0)
	if err != nil {
		switch {
		case stderrors.Is(err, syscall.ELOOP):
			return nil, errors.NewInvalidRequest("cannot read from symlink")
		case stderrors.Is(err, syscall.ENOENT):
			return nil, errors.NewNotFound(path)
		}
		return nil, errors.NewInvalidRequest("cannot open file: " + err.Error())
	}
	return os.NewFile(uintptr(fd), path), nil
}
