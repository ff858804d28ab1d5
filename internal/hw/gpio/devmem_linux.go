//go:build linux

package gpio

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/cjeanneret/PortGo/internal/port"
	"golang.org/x/sys/unix"
)

const pageSize = 4096

// DevMemSurface maps the register blocks straight out of /dev/mem.
type DevMemSurface struct {
	file   *os.File
	ports  [port.NumGroups]*mmapBlock
	sysctl *mmapBlock
}

// NewDevMemSurface maps one page per register block.
// Requires root (or CAP_SYS_RAWIO) on a target that exposes the GPIO
// blocks at their datasheet addresses.
func NewDevMemSurface() (*DevMemSurface, error) {
	debug.Info("Initializing /dev/mem register surface")

	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/mem: %w", err)
	}
	s := &DevMemSurface{file: f}

	for g := port.GroupA; g < port.NumGroups; g++ {
		b, err := mapBlock(f, blockName(g), PortBase[g])
		if err != nil {
			s.Close()
			return nil, err
		}
		s.ports[g] = b
	}
	if s.sysctl, err = mapBlock(f, "SYSCTL", SysCtlBase); err != nil {
		s.Close()
		return nil, err
	}

	debug.Verbose("register blocks memory mapped successfully")
	return s, nil
}

func mapBlock(f *os.File, name string, base uintptr) (*mmapBlock, error) {
	mem, err := unix.Mmap(int(f.Fd()), int64(base), pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s at 0x%08X: %w", name, base, err)
	}
	return &mmapBlock{name: name, mem: mem}, nil
}

// Port returns the mapped block for group g.
func (s *DevMemSurface) Port(g port.Group) (Block, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("no register block for port group %d", uint8(g))
	}
	return s.ports[g], nil
}

// SysCtl returns the mapped system-control block.
func (s *DevMemSurface) SysCtl() Block { return s.sysctl }

// Close unmaps every block and closes /dev/mem.
func (s *DevMemSurface) Close() error {
	debug.Trace("register surface close (devmem)")

	var first error
	unmap := func(b *mmapBlock) {
		if b == nil {
			return
		}
		if err := unix.Munmap(b.mem); err != nil && first == nil {
			first = fmt.Errorf("munmap %s: %w", b.name, err)
		}
	}
	for _, b := range s.ports {
		unmap(b)
	}
	unmap(s.sysctl)
	if err := s.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

type mmapBlock struct {
	name string
	mem  []byte
}

func (b *mmapBlock) reg(off uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(&b.mem[off]))
}

func (b *mmapBlock) Read(off uintptr) uint32 {
	v := atomic.LoadUint32(b.reg(off))
	debug.Reg("read", b.name, off, v)
	return v
}

func (b *mmapBlock) Write(off uintptr, v uint32) {
	debug.Reg("write", b.name, off, v)
	atomic.StoreUint32(b.reg(off), v)
}
