package usftp

import (
	"bytes"
	"io"
	"sort"
	"sync"
)

// memHandler is an in-memory Handler fixture: a tiny filesystem good enough
// to drive Server through every request type without touching the real
// filesystem. It is not meant to be a realistic backend, just something
// deterministic to assert protocol behavior against.
type memHandler struct {
	UnimplementedHandler

	mu    sync.Mutex
	files map[string]*memFile
	dirs  *HandleTable[*memDir]
	hfile *HandleTable[*memFile]
}

type memFile struct {
	data  []byte
	mode  uint32
	mtime uint32
}

// memDir tracks the one piece of per-handle state a directory listing
// needs: whether the single batch of entries has already been handed out,
// so the next SSH_FXP_READDIR gets EOF.
type memDir struct {
	path string
	eof  bool
}

func newMemHandler() *memHandler {
	return &memHandler{
		files: make(map[string]*memFile),
		dirs:  NewHandleTable[*memDir](),
		hfile: NewHandleTable[*memFile](),
	}
}

func (h *memHandler) Init() map[string]string {
	return map[string]string{
		extLimits:   "1",
		extFsync:    "1",
		extStatvfs:  "2",
		extHardlink: "1",
	}
}

func (h *memHandler) Open(path string, pflags uint32, attrs *FileStat) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.files[path]
	if !ok {
		if 0 == pflags&sshFxfCreat {
			return "", ErrSSHFxNoSuchFile
		}
		f = &memFile{mode: 0o100644}
		h.files[path] = f
	} else if 0 != pflags&sshFxfTrunc {
		f.data = nil
	}
	return h.hfile.Open(f), nil
}

func (h *memHandler) Close(handle string) error {
	if _, ok := h.hfile.Close(handle); !ok {
		if _, ok := h.dirs.Close(handle); !ok {
			return ErrSSHFxBadMessage
		}
	}
	return nil
}

func (h *memHandler) Read(handle string, offset uint64, length uint32) ([]byte, error) {
	f, ok := h.hfile.Get(handle)
	if !ok {
		return nil, ErrSSHFxBadMessage
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if offset >= uint64(len(f.data)) {
		return nil, io.EOF
	}
	end := offset + uint64(length)
	if end > uint64(len(f.data)) {
		end = uint64(len(f.data))
	}
	return f.data[offset:end], nil
}

func (h *memHandler) Write(handle string, offset uint64, data []byte) error {
	f, ok := h.hfile.Get(handle)
	if !ok {
		return ErrSSHFxBadMessage
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	end := offset + uint64(len(data))
	if end > uint64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[offset:end], data)
	return nil
}

func (h *memHandler) Fstat(handle string) (*FileStat, error) {
	f, ok := h.hfile.Get(handle)
	if !ok {
		return nil, ErrSSHFxBadMessage
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return &FileStat{Size: uint64(len(f.data)), Mode: f.mode}, nil
}

func (h *memHandler) Stat(path string) (*FileStat, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[path]
	if !ok {
		return nil, ErrSSHFxNoSuchFile
	}
	return &FileStat{Size: uint64(len(f.data)), Mode: f.mode}, nil
}

func (h *memHandler) Lstat(path string) (*FileStat, error) { return h.Stat(path) }

func (h *memHandler) Remove(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.files[path]; !ok {
		return ErrSSHFxNoSuchFile
	}
	delete(h.files, path)
	return nil
}

func (h *memHandler) OpenDir(path string) (string, error) {
	return h.dirs.Open(&memDir{path: path}), nil
}

func (h *memHandler) ReadDir(handle string) ([]NamedAttrs, error) {
	dir, ok := h.dirs.Get(handle)
	if !ok {
		return nil, ErrSSHFxBadMessage
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if dir.eof {
		return nil, io.EOF
	}
	dir.eof = true

	prefix := dir.path
	if "/" != prefix {
		prefix += "/"
	}
	names := make([]string, 0, len(h.files))
	for p := range h.files {
		if bytes.HasPrefix([]byte(p), []byte(prefix)) {
			rest := p[len(prefix):]
			if 0 == len(rest) || bytes.ContainsRune([]byte(rest), '/') {
				continue
			}
			names = append(names, rest)
		}
	}
	sort.Strings(names)

	entries := make([]NamedAttrs, 0, len(names)+2)
	entries = append(entries, NamedAttrs{Name: ".", Attrs: &FileStat{Mode: 0o40755}})
	entries = append(entries, NamedAttrs{Name: "..", Attrs: &FileStat{Mode: 0o40755}})
	for _, n := range names {
		f := h.files[prefix+n]
		entries = append(entries, NamedAttrs{Name: n, Attrs: &FileStat{Size: uint64(len(f.data)), Mode: f.mode}})
	}
	return entries, nil
}

func (h *memHandler) RealPath(path string) (string, error) {
	if 0 == len(path) {
		return "/", nil
	}
	return path, nil
}

func (h *memHandler) Rename(oldN, newN string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[oldN]
	if !ok {
		return ErrSSHFxNoSuchFile
	}
	delete(h.files, oldN)
	h.files[newN] = f
	return nil
}

func (h *memHandler) PosixRename(oldN, newN string) error { return h.Rename(oldN, newN) }

func (h *memHandler) Fsync(handle string) error {
	if _, ok := h.hfile.Get(handle); !ok {
		return ErrSSHFxBadMessage
	}
	return nil
}

func (h *memHandler) StatVFS(path string) (*StatVFS, error) {
	return &StatVFS{Bsize: 4096, Frsize: 4096, Blocks: 1000, Bfree: 500}, nil
}

func (h *memHandler) Extended(name string, payload []byte) ([]byte, error) {
	if "echo@example.com" == name {
		return payload, nil
	}
	return nil, ErrSSHFxOpUnsupported
}
