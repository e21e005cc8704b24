// Package dnc provides a do-not-call matching engine for high-volume
// outbound dialing. Lists are held in memory behind a two-layer
// lookup: a bloom filter answers the overwhelmingly common "not on any
// list" case in O(1), and a sorted binary MD5 array verifies bloom
// positives with an O(log n) search. Hashes are stored as fixed
// 16-byte arrays rather than hex strings to keep large federal DNC
// snapshots affordable in RAM.
package dnc

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrListNotFound is returned when a do-not-call list doesn't exist.
	ErrListNotFound = errors.New("do-not-call list not found")

	// ErrInvalidMD5 is returned when an MD5 hash is malformed.
	ErrInvalidMD5 = errors.New("invalid MD5 hash format")

	// ErrEmptyList is returned when attempting to load an empty list.
	ErrEmptyList = errors.New("do-not-call list is empty")
)

// =============================================================================
// PHONE HASH
// =============================================================================

// PhoneHash is a 16-byte MD5 of a normalized (digits-only) phone
// number in binary form.
type PhoneHash [16]byte

// HashPhone computes the hash of a phone number after reducing it to
// digits. A leading plus and common formatting punctuation are
// dropped, matching the importer's normalization.
func HashPhone(phone string) PhoneHash {
	var b strings.Builder
	b.Grow(len(phone))
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return md5.Sum([]byte(b.String()))
}

// HashFromHex converts a hex-encoded MD5 string to binary form.
func HashFromHex(hexStr string) (PhoneHash, error) {
	var h PhoneHash
	hexStr = strings.ToLower(strings.TrimSpace(hexStr))
	if len(hexStr) != 32 {
		return h, fmt.Errorf("%w: expected 32 characters, got %d", ErrInvalidMD5, len(hexStr))
	}
	if _, err := hex.Decode(h[:], []byte(hexStr)); err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidMD5, err)
	}
	return h, nil
}

// ToHex returns the hex-encoded string representation of the hash.
func (h PhoneHash) ToHex() string {
	return hex.EncodeToString(h[:])
}

// Compare returns -1, 0, or 1 ordering h against other, enabling
// binary search without string allocations.
func (h PhoneHash) Compare(other PhoneHash) int {
	return bytes.Compare(h[:], other[:])
}

// =============================================================================
// BLOOM FILTER
// =============================================================================

// bloomFilter is a space-efficient probabilistic membership test.
// False positives fall through to the sorted-array verification;
// false negatives never happen, so no callable number is ever blocked
// by the filter alone.
type bloomFilter struct {
	bits      []uint64
	size      uint64
	hashCount uint
	count     uint64
}

// newBloomFilter sizes the filter for the expected element count at a
// 0.1% false positive rate.
//
// Optimal bits m = -n * ln(p) / ln(2)^2, optimal hashes k = (m/n) * ln(2).
func newBloomFilter(expected uint64) *bloomFilter {
	if expected == 0 {
		expected = 1000
	}
	const fpRate = 0.001

	n := float64(expected)
	m := uint64(-n * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	if m < 64 {
		m = 64
	}
	m = ((m + 63) / 64) * 64

	k := uint((float64(m) / n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}

	return &bloomFilter{
		bits:      make([]uint64, m/64),
		size:      m,
		hashCount: k,
	}
}

func (bf *bloomFilter) add(h PhoneHash) {
	for i := uint(0); i < bf.hashCount; i++ {
		pos := bf.hash(h, i) % bf.size
		bf.bits[pos/64] |= 1 << (pos % 64)
	}
	bf.count++
}

func (bf *bloomFilter) mayContain(h PhoneHash) bool {
	for i := uint(0); i < bf.hashCount; i++ {
		pos := bf.hash(h, i) % bf.size
		if bf.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

func (bf *bloomFilter) memoryBytes() uint64 {
	return uint64(len(bf.bits)) * 8
}

// hash derives the i-th hash via double hashing over the two 8-byte
// halves of the MD5: h_i = h1 + i*h2.
func (bf *bloomFilter) hash(h PhoneHash, i uint) uint64 {
	h1 := binary.LittleEndian.Uint64(h[:8])
	h2 := binary.LittleEndian.Uint64(h[8:])
	return h1 + uint64(i)*h2
}

// =============================================================================
// DNC LIST
// =============================================================================

// List is a single do-not-call list with two-layer lookup.
type List struct {
	ID       string
	Name     string
	filter   *bloomFilter
	hashes   []PhoneHash
	loadedAt time.Time
	source   string // origin, e.g. "federal", "state", "internal"
	mu       sync.RWMutex
}

// ListStats describes a loaded list.
type ListStats struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	RecordCount      uint64    `json:"record_count"`
	TotalMemoryBytes uint64    `json:"total_memory_bytes"`
	LoadedAt         time.Time `json:"loaded_at"`
	Source           string    `json:"source"`
}

// NewList builds a list from phone hashes, deduplicating and sorting
// them for binary search.
func NewList(id, name, source string, hashes []PhoneHash) (*List, error) {
	if len(hashes) == 0 {
		return nil, ErrEmptyList
	}

	unique := deduplicateAndSort(hashes)

	filter := newBloomFilter(uint64(len(unique)))
	for _, h := range unique {
		filter.add(h)
	}

	return &List{
		ID:       id,
		Name:     name,
		filter:   filter,
		hashes:   unique,
		loadedAt: time.Now(),
		source:   source,
	}, nil
}

// Contains checks if a phone hash is on the list.
func (l *List) Contains(h PhoneHash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.filter.mayContain(h) {
		return false
	}
	return binarySearch(l.hashes, h)
}

// ContainsPhone checks if a phone number is on the list.
func (l *List) ContainsPhone(phone string) bool {
	return l.Contains(HashPhone(phone))
}

// Count returns the number of entries on the list.
func (l *List) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.hashes)
}

// Stats returns statistics about the list.
func (l *List) Stats() ListStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ListStats{
		ID:               l.ID,
		Name:             l.Name,
		RecordCount:      uint64(len(l.hashes)),
		TotalMemoryBytes: l.filter.memoryBytes() + uint64(len(l.hashes))*16,
		LoadedAt:         l.loadedAt,
		Source:           l.source,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine manages all loaded do-not-call lists. It prevents duplicate
// loading across concurrent callers and tracks aggregate check
// metrics.
type Engine struct {
	lists   map[string]*List
	loading map[string]*loadState
	mu      sync.RWMutex

	checksTotal   uint64
	checksBlocked uint64
}

// loadState lets concurrent loaders of the same list wait on a single
// load instead of stampeding.
type loadState struct {
	wg   sync.WaitGroup
	err  error
	list *List
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{
		lists:   make(map[string]*List),
		loading: make(map[string]*loadState),
	}
}

// LoadList loads a list into the engine. If the list is already
// loaded the existing one is returned; if another goroutine is
// loading it, the caller waits for that load to finish.
func (e *Engine) LoadList(id, name, source string, hashes []PhoneHash) (*List, error) {
	e.mu.RLock()
	if list, ok := e.lists[id]; ok {
		e.mu.RUnlock()
		return list, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	if list, ok := e.lists[id]; ok {
		e.mu.Unlock()
		return list, nil
	}
	if state, loading := e.loading[id]; loading {
		e.mu.Unlock()
		state.wg.Wait()
		if state.err != nil {
			return nil, state.err
		}
		return state.list, nil
	}

	state := &loadState{}
	state.wg.Add(1)
	e.loading[id] = state
	e.mu.Unlock()

	list, err := NewList(id, name, source, hashes)

	e.mu.Lock()
	state.err = err
	state.list = list
	if err == nil {
		e.lists[id] = list
	}
	delete(e.loading, id)
	e.mu.Unlock()

	state.wg.Done()
	return list, err
}

// LoadListFromReader loads a list from a stream with one entry per
// line: either a 32-character MD5 hex or a raw phone number. Blank
// lines and # comments are skipped.
func (e *Engine) LoadListFromReader(id, name, source string, r io.Reader) (*List, error) {
	hashes := make([]PhoneHash, 0, 10000)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) == 32 {
			if h, err := HashFromHex(line); err == nil {
				hashes = append(hashes, h)
				continue
			}
		}
		hashes = append(hashes, HashPhone(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(hashes) == 0 {
		return nil, ErrEmptyList
	}
	return e.LoadList(id, name, source, hashes)
}

// GetList returns a loaded list by ID.
func (e *Engine) GetList(id string) (*List, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if list, ok := e.lists[id]; ok {
		return list, nil
	}
	return nil, ErrListNotFound
}

// UnloadList removes a list from memory.
func (e *Engine) UnloadList(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lists, id)
}

// ListIDs returns the IDs of all loaded lists.
func (e *Engine) ListIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.lists))
	for id := range e.lists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsBlocked checks if a phone number appears on any loaded list. A nil
// engine blocks nothing, so callers can hold one without wiring lists.
func (e *Engine) IsBlocked(phone string) bool {
	if e == nil {
		return false
	}
	atomic.AddUint64(&e.checksTotal, 1)
	h := HashPhone(phone)

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, list := range e.lists {
		if list.filter.mayContain(h) && binarySearch(list.hashes, h) {
			atomic.AddUint64(&e.checksBlocked, 1)
			return true
		}
	}
	return false
}

// EngineStats contains aggregate metrics across all lists.
type EngineStats struct {
	Lists         []ListStats `json:"lists"`
	TotalRecords  uint64      `json:"total_records"`
	ChecksTotal   uint64      `json:"checks_total"`
	ChecksBlocked uint64      `json:"checks_blocked"`
}

// Stats returns statistics for every loaded list.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := EngineStats{
		Lists:         make([]ListStats, 0, len(e.lists)),
		ChecksTotal:   atomic.LoadUint64(&e.checksTotal),
		ChecksBlocked: atomic.LoadUint64(&e.checksBlocked),
	}
	for _, list := range e.lists {
		ls := list.Stats()
		stats.Lists = append(stats.Lists, ls)
		stats.TotalRecords += ls.RecordCount
	}
	return stats
}

// =============================================================================
// HELPERS
// =============================================================================

func binarySearch(hashes []PhoneHash, target PhoneHash) bool {
	left, right := 0, len(hashes)-1
	for left <= right {
		mid := left + (right-left)/2
		cmp := target.Compare(hashes[mid])
		if cmp == 0 {
			return true
		} else if cmp < 0 {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return false
}

func deduplicateAndSort(hashes []PhoneHash) []PhoneHash {
	if len(hashes) == 0 {
		return hashes
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].Compare(hashes[j]) < 0
	})

	unique := hashes[:1]
	for i := 1; i < len(hashes); i++ {
		if hashes[i].Compare(unique[len(unique)-1]) != 0 {
			unique = append(unique, hashes[i])
		}
	}
	return unique
}
