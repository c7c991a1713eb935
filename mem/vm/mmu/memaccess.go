package mmu

import (
	"log"

	"github.com/sarchlab/vmkernel/mem"
)

// ReadMem reads size (1, 2, or 4) bytes at a virtual address of the current
// process. On a fault, the fault is returned and nothing is read.
func (m *MemoryManager) ReadMem(vAddr uint64, size int) (uint32, error) {
	m.Lock()
	defer m.Unlock()

	pAddr, err := m.translate(vAddr, size, false)
	if err != nil {
		return 0, err
	}

	data, err := m.memory.Read(pAddr, uint64(size))
	if err != nil {
		log.Panic(err)
	}

	switch size {
	case 1:
		return uint32(data[0]), nil
	case 2:
		return uint32(mem.ShortToHost(data)), nil
	default:
		return mem.WordToHost(data), nil
	}
}

// WriteMem writes the low size (1, 2, or 4) bytes of value at a virtual
// address of the current process. On a fault, the fault is returned and
// nothing is written.
func (m *MemoryManager) WriteMem(vAddr uint64, size int, value uint32) error {
	m.Lock()
	defer m.Unlock()

	pAddr, err := m.translate(vAddr, size, true)
	if err != nil {
		return err
	}

	var data []byte

	switch size {
	case 1:
		data = []byte{byte(value)}
	case 2:
		data = mem.ShortToMachine(uint16(value))
	default:
		data = mem.WordToMachine(value)
	}

	err = m.memory.Write(pAddr, data)
	if err != nil {
		log.Panic(err)
	}

	return nil
}
