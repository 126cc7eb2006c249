package kite

import (
	"sync"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// instrumentMapper maps trading symbols to Kite instrument tokens and back.
type instrumentMapper struct {
	symbolToToken map[string]uint32
	tokenToSymbol map[uint32]string
	mu            sync.RWMutex
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		symbolToToken: make(map[string]uint32),
		tokenToSymbol: make(map[uint32]string),
	}
}

func (im *instrumentMapper) addMapping(symbol string, token uint32) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.symbolToToken[symbol] = token
	im.tokenToSymbol[token] = symbol
}

// load replaces all mappings with the equity instruments in list.
func (im *instrumentMapper) load(list kiteconnect.Instruments) int {
	symbolToToken := make(map[string]uint32, len(list))
	tokenToSymbol := make(map[uint32]string, len(list))
	for _, inst := range list {
		if inst.InstrumentType != "" && inst.InstrumentType != "EQ" {
			continue
		}
		token := uint32(inst.InstrumentToken)
		symbolToToken[inst.Tradingsymbol] = token
		tokenToSymbol[token] = inst.Tradingsymbol
	}

	im.mu.Lock()
	im.symbolToToken = symbolToToken
	im.tokenToSymbol = tokenToSymbol
	im.mu.Unlock()
	return len(symbolToToken)
}

func (im *instrumentMapper) getToken(symbol string) (uint32, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	token, exists := im.symbolToToken[symbol]
	return token, exists
}

func (im *instrumentMapper) getSymbol(token uint32) string {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return im.tokenToSymbol[token]
}

func (im *instrumentMapper) size() int {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return len(im.symbolToToken)
}
