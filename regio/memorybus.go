package regio

import "sync"

// Access records one register access on a MemoryBus.
type Access struct {
	Write bool
	Addr  uint32
	Value uint32
}

// MemoryBus is a Bus backed by a map. Unwritten addresses read as zero.
// It is meant as a fake device in tests and as the storage of simulated
// devices.
type MemoryBus struct {
	lock  sync.Mutex
	words map[uint32]uint32
	log   []Access

	// OnRead, if set, is called before every word read. It may change the
	// stored value with Poke.
	OnRead func(addr uint32)

	// OnWrite, if set, is called after every write.
	OnWrite func(addr uint32, value uint32)
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{words: make(map[uint32]uint32)}
}

// Read returns the word at addr.
func (b *MemoryBus) Read(addr uint32) (uint32, error) {
	if b.OnRead != nil {
		b.OnRead(addr)
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	v := b.words[addr]
	b.log = append(b.log, Access{Addr: addr, Value: v})

	return v, nil
}

// Write stores value at addr.
func (b *MemoryBus) Write(addr uint32, value uint32) error {
	b.lock.Lock()
	b.words[addr] = value
	b.log = append(b.log, Access{Write: true, Addr: addr, Value: value})
	b.lock.Unlock()

	if b.OnWrite != nil {
		b.OnWrite(addr, value)
	}

	return nil
}

// ReadBlock reads n consecutive words.
func (b *MemoryBus) ReadBlock(addr uint32, n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		v, err := b.Read(addr + uint32(4*i))
		if err != nil {
			return nil, err
		}

		out[i] = v
	}

	return out, nil
}

// Poke stores a value without recording an access or calling hooks.
func (b *MemoryBus) Poke(addr uint32, value uint32) {
	b.lock.Lock()
	b.words[addr] = value
	b.lock.Unlock()
}

// Peek returns a value without recording an access or calling hooks.
func (b *MemoryBus) Peek(addr uint32) uint32 {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.words[addr]
}

// Writes returns the recorded writes in order.
func (b *MemoryBus) Writes() []Access {
	b.lock.Lock()
	defer b.lock.Unlock()

	var writes []Access
	for _, a := range b.log {
		if a.Write {
			writes = append(writes, a)
		}
	}

	return writes
}

// ClearLog forgets the recorded accesses.
func (b *MemoryBus) ClearLog() {
	b.lock.Lock()
	b.log = nil
	b.lock.Unlock()
}
