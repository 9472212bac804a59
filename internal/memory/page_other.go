//go:build !unix

package memory

// DefaultPageGranularity is the portable fallback used on non-unix GOOS,
// mirroring the teacher's filewatcher_windows.go stub for the same reason:
// golang.org/x/sys/unix has no Windows build.
func DefaultPageGranularity() int64 {
	return 4096
}
