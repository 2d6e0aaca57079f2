//go:build windows

package localfile

import (
	"os"

	"github.com/hpungsan/memomind/internal/errors"
)

// Windows has no O_NOFOLLOW; Check has already rejected symlinks.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, errors.NewInvalidRequest("cannot open file: " + err.Error())
	}
	return f, nil
}

func openNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, errors.NewInvalidRequest("cannot open file: " + err.Error())
	}
	return f, nil
}
