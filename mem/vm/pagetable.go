package vm

// A PageTable holds the translation entries of one process, indexed by
// virtual page number.
type PageTable struct {
	pid     PID
	entries []TranslationEntry
}

// NewPageTable creates a page table of numPages unmapped entries.
func NewPageTable(pid PID, numPages int) *PageTable {
	t := &PageTable{
		pid:     pid,
		entries: make([]TranslationEntry, numPages),
	}

	for i := range t.entries {
		t.ResetEntry(uint64(i))
	}

	return t
}

// PID returns the process that owns the page table.
func (t *PageTable) PID() PID {
	return t.pid
}

// Size returns the number of virtual pages of the address space.
func (t *PageTable) Size() int {
	return len(t.entries)
}

// Entry returns the entry of the given virtual page. The returned pointer
// remains valid for the lifetime of the table. The bool return value is false
// if vpn is out of range.
func (t *PageTable) Entry(vpn uint64) (*TranslationEntry, bool) {
	if vpn >= uint64(len(t.entries)) {
		return nil, false
	}

	return &t.entries[vpn], true
}

// SetReadOnly marks a virtual page as read-only or writable.
func (t *PageTable) SetReadOnly(vpn uint64, readOnly bool) {
	e, ok := t.Entry(vpn)
	if !ok {
		panic("virtual page out of range")
	}

	e.ReadOnly = readOnly
}

// Resident returns the entries that currently map a frame, in virtual page
// order.
func (t *PageTable) Resident() []*TranslationEntry {
	var resident []*TranslationEntry

	for i := range t.entries {
		if t.entries[i].PhysicalPage.Valid() {
			resident = append(resident, &t.entries[i])
		}
	}

	return resident
}

// ResetEntry puts an entry back into its initial unmapped state.
func (t *PageTable) ResetEntry(vpn uint64) {
	t.entries[vpn] = TranslationEntry{
		VirtualPage:  vpn,
		PhysicalPage: NoFrame,
		Owner:        t.pid,
	}
}

// Entries returns a copy of all entries.
func (t *PageTable) Entries() []TranslationEntry {
	entries := make([]TranslationEntry, len(t.entries))
	copy(entries, t.entries)

	return entries
}
