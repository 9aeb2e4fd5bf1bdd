package ingestor

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

type klineEnvelope struct {
	Stream string          `json:"stream"`
	Data   klineEventFrame `json:"data"`
}

type klineEventFrame struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     klineData `json:"k"`
}

type klineData struct {
	StartTime  int64  `json:"t"`
	CloseTime  int64  `json:"T"`
	Symbol     string `json:"s"`
	Interval   string `json:"i"`
	Open       string `json:"o"`
	Close      string `json:"c"`
	High       string `json:"h"`
	Low        string `json:"l"`
	Volume     string `json:"v"`
	TradeCount int64  `json:"n"`
	IsClosed   bool   `json:"x"`
}

// Binance pings combined-stream connections roughly every 3 minutes and
// expects a pong within 10; pongWait/pingPeriod give both sides of that
// keepalive a margin, and writeWait bounds how long a control-frame write
// may block.
const (
	pongWait   = 3 * time.Minute
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// klineListener dials one symbol's 1-minute kline stream, reconnecting with
// exponential backoff up to a ceiling, and hands every *closed* bar to onBar.
// It blocks until stop is closed.
func klineListener(stop <-chan struct{}, symbol string, onBar func(klineData)) {
	streamURL := fmt.Sprintf("wss://fstream.binance.com/stream?streams=%s@kline_1m", lower(symbol))

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(streamURL, nil)
		if err != nil {
			log.Printf("[ingestor:%s] connect error: %v, retrying in %s", symbol, err, backoff)
			select {
			case <-stop:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		log.Printf("[ingestor:%s] connected", symbol)
		backoff = time.Second

		readLoop(conn, stop, symbol, onBar)
		conn.Close()
	}
}

func readLoop(conn *websocket.Conn, stop <-chan struct{}, symbol string, onBar func(klineData)) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("[ingestor:%s] read error: %v", symbol, err)
				return
			}
			var env klineEnvelope
			if err := json.Unmarshal(message, &env); err != nil {
				log.Printf("[ingestor:%s] malformed frame dropped: %v", symbol, err)
				continue
			}
			if !env.Data.Kline.IsClosed {
				continue
			}
			onBar(env.Data.Kline)
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Printf("[ingestor:%s] keepalive ping failed: %v", symbol, err)
				return
			}
		}
	}
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
