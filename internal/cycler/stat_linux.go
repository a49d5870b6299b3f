//go:build linux

package cycler

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func accessTime(fi os.FileInfo, path string) time.Time {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fi.ModTime()
	}
	return time.Unix(st.Atim.Sec, st.Atim.Nsec)
}
