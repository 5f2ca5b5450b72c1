//go:build linux

// File: transport/tcp/affinity_linux.go
// Linux CPU-affinity pinning for the accept goroutine, grounded
// verbatim on the teacher's transport/tcp/affinity_linux.go.
package tcp

import (
	"runtime"
	"syscall"
	"unsafe"

	"go.uber.org/zap"
)

var affinityLog = zap.NewNop()

func setCPUAffinity(cpu int) {
	runtime.LockOSThread()
	pid := syscall.Gettid()
	var mask [1024 / 64]uint64
	mask[cpu/64] |= 1 << uint(cpu%64)
	_, _, e := syscall.RawSyscall(
		syscall.SYS_SCHED_SETAFFINITY,
		uintptr(pid),
		uintptr(unsafe.Sizeof(mask)),
		uintptr(unsafe.Pointer(&mask[0])),
	)
	if e != 0 {
		affinityLog.Warn("failed to set CPU affinity", zap.Int("cpu", cpu), zap.Uintptr("errno", uintptr(e)))
	}
}
