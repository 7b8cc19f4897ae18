package valr

import (
	"net/http"
	"strconv"
	"time"

	"github.com/recws-org/recws"
)

const (
	handshakeTimeout = 5 * time.Second
	pingInterval     = 30 * time.Second
)

type valrSubscription struct {
	Event string   `json:"event"`
	Pairs []string `json:"pairs"`
}

type wsRequestModel struct {
	Type          string             `json:"type"`
	Subscriptions []valrSubscription `json:"subscriptions,omitempty"`
}

// ValrStreamClient owns the websocket to VALR's trade stream. recws redials
// dropped connections; the subscribe handler replays the subscriptions after
// every (re)connect.
type ValrStreamClient struct {
	url           string
	apiKey        string
	apiSecret     string
	subscriptions []valrSubscription

	conn *recws.RecConn
	out  chan []byte
	done chan struct{}
}

func NewValrStreamClient(url, apiKey, apiSecret string, subscriptions []valrSubscription) *ValrStreamClient {
	return &ValrStreamClient{
		url:           url,
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		subscriptions: subscriptions,
		out:           make(chan []byte, 64),
		done:          make(chan struct{}),
	}
}

func (c *ValrStreamClient) Connect() error {
	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		SubscribeHandler: c.subscribe,
	}

	c.conn = conn
	conn.Dial(c.url, c.authHeaders())

	go c.read()
	go c.ping()
	return nil
}

// Messages yields raw frames in arrival order. The channel closes on Close.
func (c *ValrStreamClient) Messages() <-chan []byte {
	return c.out
}

func (c *ValrStreamClient) Close() error {
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

func (c *ValrStreamClient) subscribe() error {
	logger.Infof("subscribing to %d valr streams", len(c.subscriptions))
	return c.conn.WriteJSON(wsRequestModel{
		Type:          "SUBSCRIBE",
		Subscriptions: c.subscriptions,
	})
}

// authHeaders signs the websocket path the same way as a REST GET.
func (c *ValrStreamClient) authHeaders() http.Header {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	header := http.Header{}
	header.Set("X-VALR-API-KEY", c.apiKey)
	header.Set("X-VALR-SIGNATURE", signRequest(c.apiSecret, timestamp, http.MethodGet, "/ws/trade", nil))
	header.Set("X-VALR-TIMESTAMP", timestamp)
	return header
}

func (c *ValrStreamClient) read() {
	defer close(c.out)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			logger.Warnf("read from valr stream: %v", err)
			time.Sleep(time.Second)
			continue
		}

		select {
		case c.out <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *ValrStreamClient) ping() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteJSON(wsRequestModel{Type: "PING"}); err != nil {
				logger.Warnf("ping valr stream: %v", err)
			}
		case <-c.done:
			return
		}
	}
}
