// Package secobjfs implements the file façade (C6): handle lifecycle,
// seek semantics, truncate, rename/remove/fsync passthroughs, and the
// read/write range loop built on the lower components (layout, blockio,
// objmeta, blockengine, rangeio). It is the entry point a TEE caller (or
// cmd/secobjctl, standing in for one) uses to open secure objects.
package secobjfs

import (
	"errors"
	"fmt"
	"net"

	"github.com/teefs/secobjfs/internal/blockengine"
	"github.com/teefs/secobjfs/internal/blockio"
	"github.com/teefs/secobjfs/internal/ctlsocksrv"
	"github.com/teefs/secobjfs/internal/layout"
	"github.com/teefs/secobjfs/internal/objmeta"
	"github.com/teefs/secobjfs/internal/session"
	"github.com/teefs/secobjfs/internal/tlog"
)

// TeeFSNameMax bounds object path length, including the terminator.
const TeeFSNameMax = 256

// Config carries the container sizing parameters that are ABI-visible:
// changing any of these breaks existing containers.
type Config struct {
	// NumBlocksPerFile sizes the backup-version-table bitmap.
	NumBlocksPerFile uint64
}

// MaxFileSize returns BLOCK_SIZE * NumBlocksPerFile for this config.
func (c Config) MaxFileSize() int64 {
	return int64(layout.BlockSize) * int64(c.NumBlocksPerFile)
}

// Engine is the entry point: it binds the external collaborators (key
// manager, RPC transport, session accessor) and sizing config, and
// produces Handles via Open/Create.
type Engine struct {
	km      blockio.KeyManager
	tr      blockio.Transport
	sess    session.Accessor
	cfg     Config
	sizes   layout.Sizes
	meta    *objmeta.Manager
	block   *blockengine.Engine
	storage StorageType
	handles map[string]*Handle
}

// New builds an Engine. km and tr are the reference (or test-fake)
// implementations of K and R; sess is S.
func New(km blockio.KeyManager, tr blockio.Transport, sess session.Accessor, cfg Config, storage StorageType) *Engine {
	sizes := layout.Sizes{
		HMeta:        km.HeaderSize(blockio.KindMeta),
		HBlock:       km.HeaderSize(blockio.KindBlock),
		MetaInfoSize: metaInfoSize(cfg.NumBlocksPerFile),
	}
	tlog.Debug.Printf("secobjfs.New: numBlocksPerFile=%d maxFileSize=%d HMeta=%d HBlock=%d",
		cfg.NumBlocksPerFile, cfg.MaxFileSize(), sizes.HMeta, sizes.HBlock)
	return &Engine{
		km:      km,
		tr:      tr,
		sess:    sess,
		cfg:     cfg,
		sizes:   sizes,
		meta:    objmeta.New(km, tr, sizes, cfg.NumBlocksPerFile),
		block:   blockengine.New(km, tr, sizes),
		storage: storage,
		handles: make(map[string]*Handle),
	}
}

// metaInfoSize mirrors objmeta's private sizing so Engine can compute
// layout.Sizes before a Manager exists. 8 bytes for Length plus the
// backup-version-table bitmap, rounded up to whole bytes.
func metaInfoSize(numBlocksPerFile uint64) int {
	return 8 + int((numBlocksPerFile+7)/8)
}

// StorageType returns the identifier this engine publishes to higher
// layers.
func (e *Engine) StorageType() StorageType {
	return e.storage
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrBadParameters)
	}
	if len(path)+1 > TeeFSNameMax {
		return fmt.Errorf("%w: path too long (%d bytes)", ErrBadParameters, len(path))
	}
	return nil
}

// Create allocates a new object at path and returns an open Handle to
// it. If any step fails, any RPC file opened is closed and removed, and
// no handle is returned.
func (e *Engine) Create(path string) (*Handle, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	uuid := e.sess.CurrentSession().UUID
	fd, err := e.tr.Open(path, true)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q for create: %v", ErrGeneric, path, err)
	}
	meta, err := e.meta.Create(fd, uuid)
	if err != nil {
		e.tr.Close(fd)
		e.tr.Remove(path)
		return nil, classifyMetaErr(err)
	}
	h := &Handle{
		eng:   e,
		path:  path,
		fd:    fd,
		meta:  meta,
		uuid:  uuid,
		state: handleOpen,
	}
	e.handles[path] = h
	return h, nil
}

// Open opens an existing object at path.
func (e *Engine) Open(path string) (*Handle, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	uuid := e.sess.CurrentSession().UUID
	fd, err := e.tr.Open(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrItemNotFound, path, err)
	}
	meta, err := e.meta.Open(fd, uuid)
	if err != nil {
		e.tr.Close(fd)
		return nil, classifyMetaErr(err)
	}
	h := &Handle{
		eng:   e,
		path:  path,
		fd:    fd,
		meta:  meta,
		uuid:  uuid,
		state: handleOpen,
	}
	e.handles[path] = h
	return h, nil
}

// Rename passes through to the RPC transport.
func (e *Engine) Rename(oldPath, newPath string, overwrite bool) error {
	if err := e.tr.Rename(oldPath, newPath, overwrite); err != nil {
		return fmt.Errorf("%w: rename %q -> %q: %v", ErrGeneric, oldPath, newPath, err)
	}
	return nil
}

// Remove passes through to the RPC transport.
func (e *Engine) Remove(path string) error {
	if err := e.tr.Remove(path); err != nil {
		return fmt.Errorf("%w: remove %q: %v", ErrGeneric, path, err)
	}
	return nil
}

// StatObject implements ctlsocksrv.Interface: it reports a one-line
// status for an object without holding it open past the call.
func (e *Engine) StatObject(name string) (string, error) {
	h, err := e.Open(name)
	if err != nil {
		return "", err
	}
	defer h.Close()
	return fmt.Sprintf("%s: length=%d counter=%d", name, h.meta.Length, h.meta.Counter), nil
}

// OpenHandles implements ctlsocksrv.Interface.
func (e *Engine) OpenHandles() []string {
	names := make([]string, 0, len(e.handles))
	for name := range e.handles {
		names = append(names, name)
	}
	return names
}

// ServeCtlSock starts the optional control socket at sockPath and serves
// it in a background goroutine until the returned listener is closed. The
// engine itself satisfies ctlsocksrv.Interface, so this is the only glue
// needed to expose it.
func (e *Engine) ServeCtlSock(sockPath string) (net.Listener, error) {
	listener, err := ctlsocksrv.Listen(sockPath)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on control socket %q: %v", ErrGeneric, sockPath, err)
	}
	go ctlsocksrv.Serve(listener, e)
	tlog.Info.Printf("secobjfs: control socket listening on %q", sockPath)
	return listener, nil
}

func classifyMetaErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, blockio.ErrCorrupt) {
		return fmt.Errorf("%w: %v", ErrCorruptObject, err)
	}
	return fmt.Errorf("%w: %v", ErrGeneric, err)
}
