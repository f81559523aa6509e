// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

// Memory layout constants. Addresses are 32-bit; the low zone is never
// mapped so null-ish dereferences trap rather than fault.
const (
	PageSize = 4096
	ZoneSize = 65536

	// MaxInput caps the argument region.
	MaxInput = 1 << 24

	roBase    = 0x10000
	rwBase    = 0x20000
	heapBase  = 0x30000
	heapLimit = heapBase + 2<<30 // sbrk cap

	// inputTop is 2^32 - ZoneSize; the input region sits just below it.
	inputTop  = 1<<32 - ZoneSize
	inputBase = inputTop - MaxInput

	// stackTop is the zone boundary below the input region; the stack
	// grows down from here.
	stackTop = inputBase - ZoneSize
)

// Perm is a page permission.
type Perm uint8

const (
	PermNone Perm = iota
	PermRead
	PermWrite
)

type page struct {
	perm Perm
	data []byte // PageSize octets, allocated lazily
}

// Memory is the sparse paged address space of one machine.
type Memory struct {
	pages    map[uint32]*page
	heapNext uint32
}

// NewMemory returns an empty address space with the heap pointer at the
// start of the heap zone's first free octet.
func NewMemory() *Memory {
	return &Memory{
		pages:    map[uint32]*page{},
		heapNext: heapBase,
	}
}

func pageIndex(addr uint32) uint32 {
	return addr / PageSize
}

func (m *Memory) pageAt(addr uint32) *page {
	return m.pages[pageIndex(addr)]
}

func (m *Memory) ensure(addr uint32, perm Perm) *page {
	idx := pageIndex(addr)
	p := m.pages[idx]
	if p == nil {
		p = &page{perm: perm, data: make([]byte, PageSize)}
		m.pages[idx] = p
	}
	return p
}

// MapRegion makes [size] octets at [base] accessible with [perm],
// rounding up to whole pages, and copies [init] into the start.
func (m *Memory) MapRegion(base, size uint32, perm Perm, init []byte) {
	if size == 0 && len(init) == 0 {
		return
	}
	if uint32(len(init)) > size {
		size = uint32(len(init))
	}
	for off := uint32(0); off < size; off += PageSize {
		p := m.ensure(base+off, perm)
		p.perm = perm
	}
	for i, b := range init {
		p := m.pageAt(base + uint32(i))
		p.data[(base+uint32(i))%PageSize] = b
	}
}

// AccessError describes a failed access: Panic for the guarded low zone,
// PageFault with the faulting page base otherwise.
type AccessError struct {
	Status    Status
	FaultBase uint32
}

func (e *AccessError) Error() string {
	if e.Status == Panic {
		return "pvm: access in guarded zone"
	}
	return "pvm: page fault"
}

func (m *Memory) checkRange(addr uint32, n uint32, write bool) *AccessError {
	if n == 0 {
		return nil
	}
	end := uint64(addr) + uint64(n)
	if addr < ZoneSize || end > 1<<32 {
		return &AccessError{Status: Panic}
	}
	for a := uint64(addr); a < end; a = (a/PageSize + 1) * PageSize {
		p := m.pageAt(uint32(a))
		switch {
		case p == nil || p.perm == PermNone:
			return &AccessError{Status: PageFault, FaultBase: uint32(a) &^ (PageSize - 1)}
		case write && p.perm != PermWrite:
			return &AccessError{Status: PageFault, FaultBase: uint32(a) &^ (PageSize - 1)}
		}
	}
	return nil
}

// Read copies [n] octets at [addr] into a fresh slice.
func (m *Memory) Read(addr, n uint32) ([]byte, *AccessError) {
	if err := m.checkRange(addr, n, false); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := uint32(0); i < n; i++ {
		p := m.pageAt(addr + i)
		out[i] = p.data[(addr+i)%PageSize]
	}
	return out, nil
}

// Write copies [bs] to [addr].
func (m *Memory) Write(addr uint32, bs []byte) *AccessError {
	if err := m.checkRange(addr, uint32(len(bs)), true); err != nil {
		return err
	}
	for i, b := range bs {
		p := m.pageAt(addr + uint32(i))
		p.data[(addr+uint32(i))%PageSize] = b
	}
	return nil
}

// Sbrk extends the heap by [n] octets and returns the previous heap
// pointer; n = 0 queries the pointer. Growth maps writable pages in page
// granularity. Exceeding the heap cap reports a guarded-zone panic.
func (m *Memory) Sbrk(n uint32) (uint32, *AccessError) {
	old := m.heapNext
	if n == 0 {
		return old, nil
	}
	end := uint64(old) + uint64(n)
	if end > heapLimit {
		return 0, &AccessError{Status: Panic}
	}
	firstNew := (uint64(old) + PageSize - 1) / PageSize * PageSize
	for a := firstNew; a < end; a += PageSize {
		p := m.ensure(uint32(a), PermWrite)
		p.perm = PermWrite
	}
	// The page holding [old] may be partially used; make sure it is
	// mapped when the old pointer is mid-page.
	if old%PageSize != 0 {
		m.ensure(old, PermWrite)
	}
	m.heapNext = uint32(end)
	return old, nil
}

// HeapPointer returns the current heap break.
func (m *Memory) HeapPointer() uint32 {
	return m.heapNext
}

// SetHeapPointer positions the heap break; program init places it past
// the initial heap zone.
func (m *Memory) SetHeapPointer(addr uint32) {
	m.heapNext = addr
}
