package usftp

import (
	"sync"

	u "github.com/tredeske/sftp"
)

// Handler is implemented by whatever is backing a Server: one method per
// SFTPv3 request kind. A non-nil error is converted to the wire Status
// reply by statusFromError; everything else becomes the typed reply the
// method name implies.
//
// Handle strings returned by Open/OpenDir are whatever the implementation
// wants them to be - the Server never interprets them, only relays them
// back verbatim on Read/Write/Close/Fstat/etc. HandleTable is provided as
// a ready-made way to mint and track them, mirroring the handle-table
// idiom used by real SFTP servers.
type Handler interface {
	// Init is called once, before any other method, and supplies the
	// extensions this server advertises in its SSH_FXP_VERSION reply.
	Init() (extensions map[string]string)

	Open(path string, pflags uint32, attrs *FileStat) (handle string, err error)
	Close(handle string) error
	Read(handle string, offset uint64, length uint32) (data []byte, err error)
	Write(handle string, offset uint64, data []byte) error

	Lstat(path string) (*FileStat, error)
	Fstat(handle string) (*FileStat, error)
	SetStat(path string, flags uint32, attrs *FileStat) error
	FSetStat(handle string, flags uint32, attrs *FileStat) error

	OpenDir(path string) (handle string, err error)
	ReadDir(handle string) (entries []NamedAttrs, err error)

	Remove(path string) error
	MkDir(path string, attrs *FileStat) error
	RmDir(path string) error

	RealPath(path string) (string, error)
	Stat(path string) (*FileStat, error)
	Rename(oldpath, newpath string) error
	ReadLink(path string) (target string, err error)
	Symlink(targetpath, linkpath string) error

	Fsync(handle string) error
	StatVFS(path string) (*StatVFS, error)
	HardLink(oldpath, newpath string) error
	PosixRename(oldpath, newpath string) error

	// Extended handles any extended request this server advertised beyond
	// the four above. name is the extended-request name; payload is
	// whatever followed it in the SSH_FXP_EXTENDED packet.
	Extended(name string, payload []byte) (reply []byte, err error)
}

// NamedAttrs is one entry of an SSH_FXP_NAME reply, as returned by
// Handler.ReadDir. LongName is computed by the server from Attrs if left
// empty.
type NamedAttrs struct {
	Name     string
	LongName string
	Attrs    *FileStat
}

// UnimplementedHandler can be embedded by a Handler implementation that
// only cares about a few request kinds; every method not overridden
// responds OP_UNSUPPORTED, except Init, which advertises no extensions.
type UnimplementedHandler struct{}

func (UnimplementedHandler) Init() map[string]string { return nil }

func (UnimplementedHandler) unsupported() error {
	return &StatusError{Code: sshFxOPUnsupported, msg: "not implemented"}
}

func (h UnimplementedHandler) Open(string, uint32, *FileStat) (string, error) {
	return "", h.unsupported()
}
func (h UnimplementedHandler) Close(string) error { return h.unsupported() }
func (h UnimplementedHandler) Read(string, uint64, uint32) ([]byte, error) {
	return nil, h.unsupported()
}
func (h UnimplementedHandler) Write(string, uint64, []byte) error { return h.unsupported() }
func (h UnimplementedHandler) Lstat(string) (*FileStat, error)    { return nil, h.unsupported() }
func (h UnimplementedHandler) Fstat(string) (*FileStat, error)    { return nil, h.unsupported() }
func (h UnimplementedHandler) SetStat(string, uint32, *FileStat) error {
	return h.unsupported()
}
func (h UnimplementedHandler) FSetStat(string, uint32, *FileStat) error {
	return h.unsupported()
}
func (h UnimplementedHandler) OpenDir(string) (string, error) { return "", h.unsupported() }
func (h UnimplementedHandler) ReadDir(string) ([]NamedAttrs, error) {
	return nil, h.unsupported()
}
func (h UnimplementedHandler) Remove(string) error                { return h.unsupported() }
func (h UnimplementedHandler) MkDir(string, *FileStat) error      { return h.unsupported() }
func (h UnimplementedHandler) RmDir(string) error                 { return h.unsupported() }
func (h UnimplementedHandler) RealPath(string) (string, error)    { return "", h.unsupported() }
func (h UnimplementedHandler) Stat(string) (*FileStat, error)     { return nil, h.unsupported() }
func (h UnimplementedHandler) Rename(string, string) error        { return h.unsupported() }
func (h UnimplementedHandler) ReadLink(string) (string, error)    { return "", h.unsupported() }
func (h UnimplementedHandler) Symlink(string, string) error       { return h.unsupported() }
func (h UnimplementedHandler) Fsync(string) error                 { return h.unsupported() }
func (h UnimplementedHandler) StatVFS(string) (*StatVFS, error)   { return nil, h.unsupported() }
func (h UnimplementedHandler) HardLink(string, string) error      { return h.unsupported() }
func (h UnimplementedHandler) PosixRename(string, string) error   { return h.unsupported() }
func (h UnimplementedHandler) Extended(string, []byte) ([]byte, error) {
	return nil, h.unsupported()
}

// HandleTable mints and tracks opaque handle strings for a Handler
// implementation, the same nextHandle/closeHandle/getHandle idiom real SFTP
// servers use to track open files and directories, just exported so any
// Handler can embed one rather than reinvent it.
type HandleTable[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
	ids     u.IdBuilder
}

// NewHandleTable returns a ready-to-use HandleTable.
func NewHandleTable[T any]() *HandleTable[T] {
	return &HandleTable[T]{entries: make(map[string]T), ids: u.NewIdBuilder()}
}

// Open mints a new handle for v and returns it. Handles are minted from
// u.IdBuilder rather than a bare sequential counter so nothing watching the
// wire can infer how many handles a session has opened from the handle
// string alone.
func (t *HandleTable[T]) Open(v T) string {
	handle := t.ids.NewId()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[handle] = v
	return handle
}

// Get returns the value registered for handle, if any.
func (t *HandleTable[T]) Get(handle string) (v T, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok = t.entries[handle]
	return
}

// Close removes handle from the table. ok is false if it was never open.
func (t *HandleTable[T]) Close(handle string) (v T, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok = t.entries[handle]
	delete(t.entries, handle)
	return
}

// Len reports how many handles are currently open.
func (t *HandleTable[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
