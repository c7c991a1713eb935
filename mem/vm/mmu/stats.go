package mmu

// Stats counts what the memory manager did.
type Stats struct {
	Translations   uint64 `json:"translations"`
	TLBHits        uint64 `json:"tlb_hits"`
	TLBMisses      uint64 `json:"tlb_misses"`
	Faults         uint64 `json:"faults"`
	Resolutions    uint64 `json:"resolutions"`
	FatalFaults    uint64 `json:"fatal_faults"`
	PageIns        uint64 `json:"page_ins"`
	WriteBacks     uint64 `json:"write_backs"`
	FrameEvictions uint64 `json:"frame_evictions"`
	TLBEvictions   uint64 `json:"tlb_evictions"`
	Reclaims       uint64 `json:"reclaims"`
}

// HitRate returns the fraction of translations served by the TLB.
func (s Stats) HitRate() float64 {
	if s.Translations == 0 {
		return 0
	}

	return float64(s.TLBHits) / float64(s.Translations)
}
