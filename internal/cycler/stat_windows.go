//go:build windows

package cycler

import (
	"os"
	"syscall"
	"time"
)

func accessTime(fi os.FileInfo, _ string) time.Time {
	if st, ok := fi.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, st.LastAccessTime.Nanoseconds())
	}
	return fi.ModTime()
}
