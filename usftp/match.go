package usftp

import (
	"path"
	"strings"
)

// ErrBadPattern indicates a globbing pattern was malformed.
var ErrBadPattern = path.ErrBadPattern

// Glob returns the names of remote files matching pattern, in the syntax of
// path.Match.  The pattern may span directories ("/var/*/t?.log"); each
// wildcard segment costs one ReadDir round trip per directory it matches
// under.  Filesystem errors while listing are treated as "no matches
// there", so the only possible error is ErrBadPattern.
func (c *Client) Glob(pattern string) (matches []string, err error) {
	// report a malformed pattern up front, before any round trips
	if _, err = path.Match(pattern, ""); err != nil {
		return nil, err
	}

	if !hasMeta(pattern) {
		if _, statErr := c.Lstat(pattern); statErr != nil {
			return nil, nil
		}
		return []string{pattern}, nil
	}

	// walk segment by segment, expanding the wildcard ones
	var roots []string
	rest := pattern
	if strings.HasPrefix(pattern, "/") {
		roots = []string{"/"}
		rest = strings.TrimLeft(pattern, "/")
	} else {
		roots = []string{"."}
	}

	lastMeta := false
	for _, seg := range strings.Split(rest, "/") {
		if 0 == len(seg) {
			continue
		}
		lastMeta = hasMeta(seg)
		var next []string
		if !lastMeta {
			for _, dir := range roots {
				next = append(next, path.Join(dir, seg))
			}
		} else {
			for _, dir := range roots {
				next = c.expand(dir, seg, next)
			}
		}
		if 0 == len(next) {
			return nil, nil
		}
		roots = next
	}

	// a wildcard tail came from ReadDir and is known to exist; a fixed tail
	// was joined without ever hitting the server, so confirm it
	for _, p := range roots {
		if lastMeta || pathExists(c, p) {
			matches = append(matches, path.Clean(p))
		}
	}
	return
}

func pathExists(c *Client, p string) bool {
	_, err := c.Lstat(p)
	return nil == err
}

// expand lists dir and appends the entries matching seg to matches.
// An unlistable dir contributes nothing.
func (c *Client) expand(dir, seg string, matches []string) []string {
	files, err := c.ReadDir(dir, 0, nil)
	if err != nil {
		return matches
	}
	for _, f := range files {
		if ok, _ := path.Match(seg, f.BaseName()); ok {
			matches = append(matches, path.Join(dir, f.BaseName()))
		}
	}
	return matches
}

// hasMeta reports whether s contains any of path.Match's wildcards.
func hasMeta(s string) bool {
	return strings.ContainsAny(s, "\\*?[")
}
