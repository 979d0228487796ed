package relay

import (
	"encoding/json"
	"math"
)

// Signal is a normalized buy event from the watched wallet, ready for the
// orchestrator.
type Signal struct {
	Mint       string
	PriceInSol float64
	SolAmount  float64
	Venue      string
	Side       string
}

// inboundMessage covers both shapes the feed sends on one channel: the
// subscription acknowledgement and trade notifications.
type inboundMessage struct {
	Type        string `json:"type"`
	Status      string `json:"status"`
	SubscribeID int64  `json:"subscribeId"`

	Trade      string   `json:"trade"`
	Dexs       []string `json:"dexs"`
	CA         string   `json:"ca"`
	PriceInSol float64  `json:"priceInSol"`
	SolAmount  float64  `json:"solAmount"`
}

func parseMessage(data []byte) (*inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// isSubscribeAck reports whether the message confirms our subscription.
func (m *inboundMessage) isSubscribeAck() bool {
	return m.Type == "subscribeTrade" && m.Status == "success"
}

// signal applies the acceptance filter and normalizes the message. Only buy
// trades on a permitted venue with a mint, a price and a non-zero amount
// qualify. The upstream reports sell-side amounts as negative, hence the
// absolute value.
func (m *inboundMessage) signal(permitted map[string]bool) (Signal, bool) {
	if m.Trade != "buy" {
		return Signal{}, false
	}
	if len(m.Dexs) == 0 || !permitted[m.Dexs[0]] {
		return Signal{}, false
	}
	if m.CA == "" || m.PriceInSol == 0 || m.SolAmount == 0 {
		return Signal{}, false
	}
	return Signal{
		Mint:       m.CA,
		PriceInSol: m.PriceInSol,
		SolAmount:  math.Abs(m.SolAmount),
		Venue:      m.Dexs[0],
		Side:       m.Trade,
	}, true
}
