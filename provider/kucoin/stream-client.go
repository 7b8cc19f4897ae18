package kucoin

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/recws-org/recws"
)

const defaultPingInterval = 18 * time.Second

type wsRequestModel struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Topic    string `json:"topic,omitempty"`
	Response bool   `json:"response,omitempty"`
}

// KucoinStreamClient owns the websocket to one Kucoin connection token. recws
// redials dropped connections; the subscribe handler replays the topics after
// every (re)connect.
type KucoinStreamClient struct {
	syncAPI *KucoinSyncAPI
	topics  []string

	conn         *recws.RecConn
	pingInterval time.Duration
	reqID        atomic.Int64
	out          chan []byte
	done         chan struct{}
}

func NewKucoinStreamClient(syncAPI *KucoinSyncAPI, topics []string) *KucoinStreamClient {
	return &KucoinStreamClient{
		syncAPI:      syncAPI,
		topics:       topics,
		pingInterval: defaultPingInterval,
		out:          make(chan []byte, 64),
		done:         make(chan struct{}),
	}
}

func (c *KucoinStreamClient) Connect() error {
	opts, err := c.syncAPI.wsConnOpts()
	if err != nil {
		return err
	}
	if len(opts.Servers) == 0 {
		return fmt.Errorf("no websocket servers offered")
	}
	server := opts.Servers[0]
	if server.PingInterval > 0 {
		c.pingInterval = time.Duration(server.PingInterval) * time.Millisecond
	}

	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 5 * time.Second,
		SubscribeHandler: c.subscribe,
	}

	c.conn = conn
	conn.Dial(fmt.Sprintf("%s?token=%s", server.Endpoint, opts.Token), nil)
	logger.Info("connected to the kucoin stream websocket")

	go c.read()
	go c.ping()
	return nil
}

// Messages yields raw frames in arrival order. The channel closes on Close.
func (c *KucoinStreamClient) Messages() <-chan []byte {
	return c.out
}

func (c *KucoinStreamClient) Close() error {
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

func (c *KucoinStreamClient) subscribe() error {
	for _, topic := range c.topics {
		logger.Infof("subscribing to %s", topic)
		err := c.conn.WriteJSON(wsRequestModel{
			ID:       c.nextReqID(),
			Type:     "subscribe",
			Topic:    topic,
			Response: true,
		})
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
	}
	return nil
}

func (c *KucoinStreamClient) nextReqID() string {
	return strconv.FormatInt(c.reqID.Add(1), 10)
}

func (c *KucoinStreamClient) read() {
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
			logger.Warnf("read from kucoin stream: %v", err)
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

func (c *KucoinStreamClient) ping() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteJSON(wsRequestModel{ID: c.nextReqID(), Type: "ping"}); err != nil {
				logger.Warnf("ping kucoin stream: %v", err)
			}
		case <-c.done:
			return
		}
	}
}
