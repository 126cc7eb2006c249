package broker

import (
	"fmt"
	"os"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"ibkr-sma-scanner/internal/broker/alpaca"
	"ibkr-sma-scanner/internal/broker/brokerobs"
	"ibkr-sma-scanner/internal/broker/ibkr"
	"ibkr-sma-scanner/internal/broker/kite"
	"ibkr-sma-scanner/internal/broker/static"
	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/store"
)

// New builds the session for cfg.Broker.Provider. Credentials for the REST
// providers come from the environment only.
func New(cfg *store.Config) (interfaces.Session, error) {
	var s interfaces.Session

	switch cfg.Broker.Provider {
	case "IBKR":
		s = ibkr.New(ibkr.Params{
			Exchange:       cfg.Broker.Exchange,
			Currency:       cfg.Broker.Currency,
			RequestTimeout: cfg.RequestTimeout(),
			MarketDataType: int64(cfg.Broker.MarketDataType),
		})
	case "KITE":
		s = kite.New(kite.Params{
			APIKey:      os.Getenv("KITE_API_KEY"),
			AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
			Exchange:    cfg.Broker.Kite.Exchange,
		})
	case "ALPACA":
		s = alpaca.New(alpaca.Params{
			APIKey:    os.Getenv("APCA_API_KEY_ID"),
			APISecret: os.Getenv("APCA_API_SECRET_KEY"),
			BaseURL:   os.Getenv("APCA_API_DATA_URL"),
			Feed:      marketdata.Feed(cfg.Broker.Alpaca.Feed),
			MaxRPS:    cfg.Broker.Alpaca.MaxRPS,
		})
	case "STATIC":
		s = static.New(time.Time{})
	default:
		return nil, fmt.Errorf("unknown broker provider '%s'", cfg.Broker.Provider)
	}

	return brokerobs.Wrap(s, cfg.Broker.Provider), nil
}
