//go:build darwin

package route

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func creationTime(path string, _ os.FileInfo) (time.Time, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, false
	}
	return time.Unix(st.Birthtimespec.Unix()), true
}
