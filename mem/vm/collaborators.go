package vm

import "errors"

// ErrPageNotFound is returned by a BackingStore when a page was never
// written.
var ErrPageNotFound = errors.New("page not found in backing store")

// A FrameAllocator hands out physical frames.
type FrameAllocator interface {
	// Acquire reserves a free frame. The bool return value is false if all
	// frames are in use.
	Acquire() (Frame, bool)

	// Release returns a frame to the free pool.
	Release(f Frame)
}

// A BackingStore keeps the pages that are not resident, keyed by process and
// virtual page number.
type BackingStore interface {
	// ReadPage returns the content of a page. It returns ErrPageNotFound if
	// the page has never been written.
	ReadPage(pid PID, vpn uint64) ([]byte, error)

	// WritePage stores exactly one page.
	WritePage(pid PID, vpn uint64, data []byte) error

	// ReleaseProcess drops every page of the process.
	ReleaseProcess(pid PID) error
}
