package usftp

import (
	"fmt"
	"time"
)

// longname renders the ls -l style string that goes in a Name reply's
// LongName field. Clients are not supposed to parse it, but every real
// server emits something roughly in this shape, so ours does too:
//
//	drwxr-xr-x    1 user     user         4096 Jan  2 15:04 somedir
func longname(name string, a *FileStat) string {
	mode := FileMode(a.Mode)
	return fmt.Sprintf("%s %4d %-8s %-8s %8d %s %s",
		lsTypeWord(mode), 1, "user", "user", a.Size, lsDate(a.ModTime()), name)
}

// lsTypeWord builds the 10 character rwx permission word, leading with the
// file type character.
func lsTypeWord(mode FileMode) string {
	word := []byte("----------")
	switch mode.Type() {
	case ModeDir:
		word[0] = 'd'
	case ModeSymlink:
		word[0] = 'l'
	}
	const rwx = "rwxrwxrwx"
	perm := mode.Perm()
	for i := 0; i < 9; i++ {
		if 0 != perm&(1<<uint(8-i)) {
			word[i+1] = rwx[i]
		}
	}
	return string(word)
}

// lsDate formats a modtime the way `ls -l` does: month/day plus either a
// HH:MM clock (recent files) or the year (anything older than ~6 months).
func lsDate(t time.Time) string {
	if t.IsZero() {
		t = time.Unix(0, 0)
	}
	isOld := t.Before(time.Now().Add(-time.Hour * 24 * 365 / 2))
	if isOld {
		return fmt.Sprintf("%s %2d %5d", t.Month().String()[:3], t.Day(), t.Year())
	}
	return fmt.Sprintf("%s %2d %02d:%02d", t.Month().String()[:3], t.Day(), t.Hour(), t.Minute())
}
