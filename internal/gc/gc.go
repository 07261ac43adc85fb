// Package gc implements Rift's block-allocated, mark-sweep garbage
// collector.
//
// Go gives user code no supported way to walk a goroutine's own stack
// frames — stacks are opaque and move on growth — so roots can't be found
// by scanning raw machine-stack memory the way a conservative C collector
// would. This collector instead uses an explicit shadow stack: the same
// root-recognition discipline (candidate slots are filtered by block
// alignment and the arena's address envelope before being trusted) applied
// to a slice of candidate words that callers push before an allocation and
// pop afterward, rather than to raw register/stack memory. This is the
// same "shadow stack" GC strategy LLVM itself documents for managed-pointer
// collection, which keeps it grounded in the same idiom the backend
// (internal/backend, built on llir/llvm) already speaks.
package gc

import (
	"unsafe"

	"rift/internal/errors"
)

// Type is the heap object tag stored in every object's Header.
type Type uint8

const (
	Invalid Type = iota
	DoubleVector
	CharacterVector
	Function
	FunctionArgs
	Environment
	Bindings
)

func (t Type) String() string {
	switch t {
	case DoubleVector:
		return "double"
	case CharacterVector:
		return "character"
	case Function:
		return "function"
	case FunctionArgs:
		return "functionArgs"
	case Environment:
		return "environment"
	case Bindings:
		return "bindings"
	default:
		return "invalid"
	}
}

type mark uint8

const (
	unmarked mark = 0
	marked   mark = 1
)

// Header is embedded as the first field of every heap object: a type tag
// and a one-byte mark word. The allocator sets Type before returning;
// Mark is reset to unmarked by the sweep of the page that holds it.
type Header struct {
	Type Type
	Mark mark
}

const (
	blockSize  = 32
	blockBits  = 5
	pageBlocks = 120
)

// Page is one fixed-size arena page: pageBlocks blocks of blockSize bytes,
// a parallel objSize map recording object extents, and an in-place freelist
// threaded through unused runs.
type page struct {
	store   []byte // raw backing storage, block-aligned
	base    uintptr
	first   uintptr
	last    uintptr
	objSize [pageBlocks]uint8
	freeList *freeNode
	freeBlocks int
}

type freeNode struct {
	blocks int
	next   *freeNode
}

func newPage() *page {
	// over-allocate so we can align the usable region to blockSize.
	buf := make([]byte, pageBlocks*blockSize+blockSize)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + blockSize - 1) &^ (blockSize - 1)
	offset := aligned - base
	p := &page{
		store: buf,
		base:  aligned,
		first: aligned,
		last:  aligned + uintptr(pageBlocks-1)*blockSize,
	}
	_ = offset
	head := p.blockPtr(0)
	*(*freeNode)(head) = freeNode{blocks: pageBlocks}
	p.freeList = (*freeNode)(head)
	p.freeBlocks = pageBlocks
	return p
}

func (p *page) blockPtr(idx int) unsafe.Pointer {
	off := p.first - p.base + uintptr(idx)*blockSize
	return unsafe.Pointer(&p.store[off])
}

func (p *page) indexOf(addr uintptr) int {
	return int((addr - p.first) >> blockBits)
}

func size2blocks(sz int) int {
	if sz%blockSize == 0 {
		return sz / blockSize
	}
	return sz/blockSize + 1
}

func (p *page) free() int { return p.freeBlocks * blockSize }

func (p *page) empty() bool { return p.freeBlocks == pageBlocks }

// alloc returns a pointer to a fresh object occupying need blocks, or nil if
// no run on this page's freelist is large enough: first-fit within
// first-fit across pages.
func (p *page) alloc(sz int) unsafe.Pointer {
	need := size2blocks(sz)
	var prevNext **freeNode = &p.freeList
	cur := p.freeList
	for cur != nil {
		if cur.blocks >= need {
			idx := p.indexOf(uintptr(unsafe.Pointer(cur)))
			if cur.blocks > need {
				rest := (*freeNode)(p.blockPtr(idx + need))
				*rest = freeNode{blocks: cur.blocks - need, next: cur.next}
				*prevNext = rest
			} else {
				*prevNext = cur.next
			}
			p.freeBlocks -= need
			p.objSize[idx] = uint8(need)
			obj := p.blockPtr(idx)
			(*Header)(obj).Mark = unmarked
			return obj
		}
		prevNext = &cur.next
		cur = cur.next
	}
	return nil
}

func (p *page) freeBlock(idx int) {
	sz := int(p.objSize[idx])
	p.freeBlocks += sz
	node := (*freeNode)(p.blockPtr(idx))
	*node = freeNode{blocks: sz, next: p.freeList}
	p.freeList = node
	p.objSize[idx] = 0
}

// sweep walks objSize, keeping every marked head (and resetting it to
// unmarked) and returning every unmarked head to the freelist.
func (p *page) sweep() {
	i := 0
	for i < pageBlocks {
		sz := p.objSize[i]
		if sz == 0 {
			i++
			continue
		}
		hdr := (*Header)(p.blockPtr(i))
		if hdr.Mark == unmarked {
			p.freeBlock(i)
		} else {
			hdr.Mark = unmarked
		}
		i += int(sz)
	}
}

func (p *page) isValidObj(addr uintptr) bool {
	if addr < p.first || addr > p.last {
		return false
	}
	idx := p.indexOf(addr)
	if idx < 0 || idx >= pageBlocks {
		return false
	}
	return p.objSize[idx] != 0
}

// Adaptive sizing constants.
const (
	minHeapPages = 4
	freeLow      = 0.1
	freeHigh     = 0.4
	growRatio    = 1.2
	shrinkRatio  = 0.8
)

// VisitChildren is implemented by every heap object kind that has children.
// Leaves (DoubleVector, CharacterVector, FunctionArgs) simply don't
// implement it.
type ChildVisitor interface {
	VisitChildren(visit func(child unsafe.Pointer))
}

// Collector is the singleton mark-sweep collector. NewCollector constructs
// one; production code keeps exactly one alive for the life of the
// process.
type Collector struct {
	pages     []*page
	minAddr   uintptr
	maxAddr   uintptr
	heapLimit int // in pages

	shadowStack []unsafe.Pointer
	globalRoots []unsafe.Pointer
	// childrenOf resolves an allocated object's Go type from its Header so
	// mark can call VisitChildren without the gc package importing value
	// types (which would create an import cycle).
	childrenOf func(addr unsafe.Pointer) ChildVisitor
}

// NewCollector creates a collector with an empty arena. childrenOf lets the
// value package (which knows the concrete struct layouts) hand back a
// ChildVisitor for any allocated header without gc depending on value.
func NewCollector(childrenOf func(unsafe.Pointer) ChildVisitor) *Collector {
	return &Collector{heapLimit: minHeapPages, childrenOf: childrenOf}
}

// PushRoot registers ptr as a conservative root until the matching PopRoots
// call. Runtime intrinsics and the backend's closure interpreter push every
// live heap pointer they hold in a local variable before any call that
// might allocate, standing in for a register-spill-then-scan discipline
// without requiring access to Go's own stack.
func (c *Collector) PushRoot(p unsafe.Pointer) int {
	c.shadowStack = append(c.shadowStack, p)
	return len(c.shadowStack) - 1
}

// PopRoots truncates the shadow stack back to mark (the index PushRoot
// returned when the frame started).
func (c *Collector) PopRoots(mark int) {
	c.shadowStack = c.shadowStack[:mark]
}

// AddGlobalRoot registers p as a process-lifetime root, outside the LIFO
// discipline of the shadow stack. Compiled function records are the only
// users: once a template compiles, its record must stay reachable for the
// rest of the process no matter which call frames come and go around it.
func (c *Collector) AddGlobalRoot(p unsafe.Pointer) {
	c.globalRoots = append(c.globalRoots, p)
}

// ReserveRoots appends n nil root slots and returns the index of the first,
// standing in for a whole activation frame's worth of live-register slots
// that get filled in (and overwritten) as execution proceeds — the
// interpreter's registers, unlike a single call's environment, change value
// throughout the frame's lifetime rather than once at entry.
func (c *Collector) ReserveRoots(n int) int {
	base := len(c.shadowStack)
	for i := 0; i < n; i++ {
		c.shadowStack = append(c.shadowStack, nil)
	}
	return base
}

// SetRoot overwrites a previously reserved root slot, keeping whatever
// pointer is currently live in that register visible to the next
// collection without growing or shrinking the shadow stack.
func (c *Collector) SetRoot(idx int, p unsafe.Pointer) {
	c.shadowStack[idx] = p
}

// Alloc is the sole entry point for heap allocation. It rounds sz up to
// blocks, tries every page's freelist, grows the arena if the soft heap
// limit allows, and otherwise triggers a collection before retrying. If
// that retry also fails, it adds one more page regardless of the soft
// limit and tries a last time, so a request that fits in one page does not
// fail for lack of space; only a request larger than one page is refused.
// The returned object's Header.Type is set before Alloc returns.
// Allocation failure is reported by panicking with an *errors.RiftError of
// kind Allocation rather than a returned error: Alloc is called from deep
// inside every intrinsic and value constructor, and allocation failure is
// fatal to the current top-level statement exactly like every other
// RiftError — the jit package's Driver.Run recovers this one panic value
// at the top of the call stack and returns it as an ordinary error, the
// same non-local-exit idiom encoding/json's own decoder uses internally
// to unwind many frames on a single fatal condition without threading an
// error return through every call site.
func (c *Collector) Alloc(sz int, typ Type) unsafe.Pointer {
	if sz > pageBlocks*blockSize {
		panic(errors.NewAllocationError(sz))
	}
	if p := c.tryAlloc(sz); p != nil {
		(*Header)(p).Type = typ
		return p
	}
	c.collect()
	c.adjustHeapLimit()
	if p := c.tryAlloc(sz); p != nil {
		(*Header)(p).Type = typ
		return p
	}
	c.growArena()
	if p := c.tryAlloc(sz); p != nil {
		(*Header)(p).Type = typ
		return p
	}
	panic(errors.NewAllocationError(sz))
}

func (c *Collector) tryAlloc(sz int) unsafe.Pointer {
	for _, p := range c.pages {
		if p.free() < sz {
			continue
		}
		if res := p.alloc(sz); res != nil {
			return res
		}
	}
	if len(c.pages) < c.heapLimit {
		c.growArena()
		if len(c.pages) > 0 {
			return c.pages[len(c.pages)-1].alloc(sz)
		}
	}
	return nil
}

func (c *Collector) growArena() {
	p := newPage()
	c.pages = append(c.pages, p)
	if c.minAddr == 0 || p.first < c.minAddr {
		c.minAddr = p.first
	}
	if p.last > c.maxAddr {
		c.maxAddr = p.last
	}
}

func (c *Collector) totalBlocks() int { return len(c.pages) * pageBlocks }

func (c *Collector) freeBlocks() int {
	f := 0
	for _, p := range c.pages {
		f += p.freeBlocks
	}
	return f
}

// adjustHeapLimit grows or shrinks the soft heap page limit based on the
// post-collection free-space fraction.
func (c *Collector) adjustHeapLimit() {
	total := c.totalBlocks()
	if total == 0 {
		return
	}
	ratio := float64(c.freeBlocks()) / float64(total)
	switch {
	case ratio < freeLow:
		c.heapLimit = int(float64(c.heapLimit) * growRatio)
		if c.heapLimit < len(c.pages)+1 {
			c.heapLimit = len(c.pages) + 1
		}
	case ratio > freeHigh && c.heapLimit > minHeapPages:
		c.heapLimit = int(float64(c.heapLimit) * shrinkRatio)
		if c.heapLimit < minHeapPages {
			c.heapLimit = minHeapPages
		}
	}
}

// IsValidPointer is the conservative candidate filter for a root word:
// block-aligned, above the reserved low range, and inside the arena's
// known address envelope.
func (c *Collector) IsValidPointer(addr uintptr) bool {
	if addr < 1024 {
		return false
	}
	if addr&(blockSize-1) != 0 {
		return false
	}
	if c.minAddr == 0 || addr < c.minAddr || addr > c.maxAddr {
		return false
	}
	for _, p := range c.pages {
		if p.isValidObj(addr) {
			return true
		}
	}
	return false
}

// Collect runs one stop-the-world mark-sweep cycle: mark from the global
// roots and the shadow stack, sweep every page, release pages left
// entirely free.
func (c *Collector) Collect() {
	c.collect()
}

func (c *Collector) collect() {
	for _, root := range c.globalRoots {
		if c.IsValidPointer(uintptr(root)) {
			c.mark(root)
		}
	}
	for _, root := range c.shadowStack {
		addr := uintptr(root)
		if c.IsValidPointer(addr) {
			c.mark(root)
		}
	}
	kept := c.pages[:0]
	for _, p := range c.pages {
		p.sweep()
		if !p.empty() {
			kept = append(kept, p)
		}
	}
	c.pages = kept
}

func (c *Collector) mark(ptr unsafe.Pointer) {
	hdr := (*Header)(ptr)
	if hdr.Mark == marked {
		return // idempotent within one cycle
	}
	hdr.Mark = marked
	if c.childrenOf == nil {
		return
	}
	if cv := c.childrenOf(ptr); cv != nil {
		cv.VisitChildren(func(child unsafe.Pointer) {
			if child == nil {
				return
			}
			addr := uintptr(child)
			if c.IsValidPointer(addr) {
				c.mark(child)
			}
		})
	}
}

// Stats reports coarse heap occupancy, used by tests asserting live values
// survive a collection.
type Stats struct {
	Pages     int
	FreeBytes int
	TotalBytes int
}

func (c *Collector) Stats() Stats {
	return Stats{
		Pages:      len(c.pages),
		FreeBytes:  c.freeBlocks() * blockSize,
		TotalBytes: c.totalBlocks() * blockSize,
	}
}
