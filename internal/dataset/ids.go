// Package dataset owns the run's output: question IDs, the JSON Lines files
// and the run summary.
package dataset

import (
	"regexp"
	"strconv"
	"sync"
)

// DefaultIDBase makes the first ID of a company <CODE>1001.
const DefaultIDBase = 1000

var idPattern = regexp.MustCompile(`^([A-Z]+)(\d+)$`)

// IDAllocator hands out per-company sequential IDs such as FAB1001, FAB1002.
type IDAllocator struct {
	mu   sync.Mutex
	base int
	last map[string]int
}

func NewIDAllocator(base int) *IDAllocator {
	if base < 0 {
		base = DefaultIDBase
	}
	return &IDAllocator{base: base, last: make(map[string]int)}
}

// Next returns the next unused ID for code.
func (a *IDAllocator) Next(code string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.last[code]
	if !ok {
		n = a.base
	}
	n++
	a.last[code] = n
	return code + strconv.Itoa(n)
}

// Seed records an ID that already exists so Next never repeats it. IDs not
// shaped like <LETTERS><DIGITS> are ignored and reported as false.
func (a *IDAllocator) Seed(id string) bool {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	last, ok := a.last[m[1]]
	if !ok {
		last = a.base
	}
	if n > last {
		a.last[m[1]] = n
	} else if !ok {
		a.last[m[1]] = last
	}
	return true
}

// Last returns the highest number issued or seeded for code, or the base.
func (a *IDAllocator) Last(code string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.last[code]; ok {
		return n
	}
	return a.base
}
