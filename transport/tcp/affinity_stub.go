//go:build !linux

// File: transport/tcp/affinity_stub.go
// Non-Linux platforms have no portable sched_setaffinity equivalent
// wired here; the accept goroutine simply runs unpinned, matching the
// teacher's affinity_windows.go fallback shape.
package tcp

func setCPUAffinity(cpu int) {}
