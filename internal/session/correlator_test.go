package session

import (
	"fmt"
	"sync"
	"testing"

	"ibkr-sma-scanner/internal/types"
)

func TestCorrelatorLookup(t *testing.T) {
	c := NewCorrelator()
	c.Put(7, "AAPL")

	if sym, ok := c.Lookup(7); !ok || sym != "AAPL" {
		t.Errorf("Expected AAPL, got %q (found=%v)", sym, ok)
	}
	if sym := c.Symbol(8); sym != UnknownSymbol {
		t.Errorf("Expected %q for missing id, got %q", UnknownSymbol, sym)
	}

	c.Put(7, "MSFT")
	if sym := c.Symbol(7); sym != "MSFT" {
		t.Errorf("Expected overwrite to MSFT, got %s", sym)
	}

	c.Forget(7)
	if c.Len() != 0 {
		t.Errorf("Expected empty correlator, got %d entries", c.Len())
	}
}

func TestCorrelatorConcurrentAccess(t *testing.T) {
	c := NewCorrelator()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			c.Put(id, fmt.Sprintf("SYM%d", id))
		}(int64(i))
		go func(id int64) {
			defer wg.Done()
			_ = c.Symbol(id)
		}(int64(i))
	}
	wg.Wait()
	if c.Len() != 50 {
		t.Errorf("Expected 50 entries, got %d", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Expected cleared correlator, got %d", c.Len())
	}
}

func TestClassify(t *testing.T) {
	cases := map[int64]Severity{
		2104: SeveritySuppress,
		2106: SeveritySuppress,
		2119: SeveritySuppress,
		200:  SeverityWarn,
		300:  SeverityWarn,
		354:  SeverityError,
		1100: SeverityError,
	}
	for code, want := range cases {
		if got := Classify(code); got != want {
			t.Errorf("Classify(%d): expected %d, got %d", code, want, got)
		}
	}
}

func TestAttribute(t *testing.T) {
	m := NewManager(nil, nil, Options{})
	defer m.Close()
	m.Correlator().Put(42, "NVDA")

	if sym := m.attribute(&types.ErrorEvent{ReqID: 42, Symbol: "IGNORED"}); sym != "NVDA" {
		t.Errorf("Expected correlator symbol NVDA, got %s", sym)
	}
	if sym := m.attribute(&types.ErrorEvent{ReqID: 43, Symbol: "TSLA"}); sym != "TSLA" {
		t.Errorf("Expected contract symbol TSLA, got %s", sym)
	}
	if sym := m.attribute(&types.ErrorEvent{ReqID: 44}); sym != UnknownSymbol {
		t.Errorf("Expected %s, got %s", UnknownSymbol, sym)
	}
}
