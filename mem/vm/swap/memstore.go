// Package swap provides the backing stores that hold non-resident pages.
package swap

import (
	"fmt"
	"sync"

	"github.com/sarchlab/vmkernel/mem/vm"
)

type pageKey struct {
	pid vm.PID
	vpn uint64
}

// A MemStore is a BackingStore that keeps pages in host memory. Each process
// owns its own region, so pages of different processes never alias.
type MemStore struct {
	sync.Mutex
	pageSize int
	pages    map[pageKey][]byte
}

// NewMemStore creates an empty MemStore for pages of pageSize bytes.
func NewMemStore(pageSize int) *MemStore {
	return &MemStore{
		pageSize: pageSize,
		pages:    make(map[pageKey][]byte),
	}
}

// ReadPage returns a copy of the page.
func (s *MemStore) ReadPage(pid vm.PID, vpn uint64) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	page, ok := s.pages[pageKey{pid, vpn}]
	if !ok {
		return nil, vm.ErrPageNotFound
	}

	data := make([]byte, len(page))
	copy(data, page)

	return data, nil
}

// WritePage stores a copy of data.
func (s *MemStore) WritePage(pid vm.PID, vpn uint64, data []byte) error {
	if len(data) != s.pageSize {
		return fmt.Errorf("page of %d bytes, expected %d", len(data), s.pageSize)
	}

	s.Lock()
	defer s.Unlock()

	page := make([]byte, len(data))
	copy(page, data)
	s.pages[pageKey{pid, vpn}] = page

	return nil
}

// ReleaseProcess drops all the pages of a process.
func (s *MemStore) ReleaseProcess(pid vm.PID) error {
	s.Lock()
	defer s.Unlock()

	for k := range s.pages {
		if k.pid == pid {
			delete(s.pages, k)
		}
	}

	return nil
}

// NumPages returns the number of pages stored for a process.
func (s *MemStore) NumPages(pid vm.PID) int {
	s.Lock()
	defer s.Unlock()

	n := 0
	for k := range s.pages {
		if k.pid == pid {
			n++
		}
	}

	return n
}
