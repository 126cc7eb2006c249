package session

import "sync"

// UnknownSymbol is reported for request ids that were never registered.
const UnknownSymbol = "unknown"

// Correlator maps outstanding request ids to the symbol they were issued for
// so that asynchronous broker errors can be attributed to a ticker.
type Correlator struct {
	reqToSymbol map[int64]string
	mu          sync.RWMutex
}

func NewCorrelator() *Correlator {
	return &Correlator{reqToSymbol: make(map[int64]string)}
}

// Put registers a request id. Re-registering an id overwrites it.
func (c *Correlator) Put(reqID int64, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reqToSymbol[reqID] = symbol
}

func (c *Correlator) Lookup(reqID int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sym, ok := c.reqToSymbol[reqID]
	return sym, ok
}

// Symbol returns the registered symbol or UnknownSymbol.
func (c *Correlator) Symbol(reqID int64) string {
	if sym, ok := c.Lookup(reqID); ok {
		return sym
	}
	return UnknownSymbol
}

func (c *Correlator) Forget(reqID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.reqToSymbol, reqID)
}

func (c *Correlator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.reqToSymbol)
}

func (c *Correlator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reqToSymbol = make(map[int64]string)
}
