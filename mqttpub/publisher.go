// Package mqttpub mirrors forwarded positions to an MQTT broker. The mirror
// is strictly best-effort: broker trouble is logged and never slows down or
// fails the uplink path.
package mqttpub

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const publishTimeout = 5 * time.Second

// Update is the JSON document published per forwarded position.
type Update struct {
	Time      int64    `json:"ts"`
	Station   string   `json:"station"`
	DeviceIDs []string `json:"device_ids"`
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lon"`
	Accuracy  *int     `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Bearing   *int     `json:"bearing,omitempty"`
	Symbol    string   `json:"symbol,omitempty"`
	Icon      string   `json:"icon,omitempty"`
	Comment   string   `json:"comment,omitempty"`
	Format    string   `json:"format"`
}

// Publisher maintains the broker connection and publishes one message per
// accepted position to <prefix>/<station>.
type Publisher struct {
	broker      string
	port        int
	topicPrefix string
	username    string
	password    string
	client      mqtt.Client
}

// NewPublisher creates a publisher; call Connect before Publish.
func NewPublisher(broker string, port int, topicPrefix, username, password string) *Publisher {
	return &Publisher{
		broker:      broker,
		port:        port,
		topicPrefix: topicPrefix,
		username:    username,
		password:    password,
	}
}

// Connect establishes the broker connection with auto-reconnect enabled.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", p.broker, p.port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("aprsbridge-%d", time.Now().Unix()))
	if p.username != "" {
		opts.SetUsername(p.username)
		opts.SetPassword(p.password)
	}

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT: connected to %s", brokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v, reconnecting", err)
	})

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqttpub: connect %s: %w", brokerURL, token.Error())
	}
	return nil
}

// Publish mirrors one update. Returns immediately; delivery outcome is
// checked and logged in the background.
func (p *Publisher) Publish(u *Update) {
	if p == nil || p.client == nil || u == nil {
		return
	}
	payload, err := json.Marshal(u)
	if err != nil {
		log.Printf("MQTT: marshal update for %s: %v", u.Station, err)
		return
	}
	topic := p.topicPrefix + "/" + u.Station
	token := p.client.Publish(topic, 0, false, payload)
	go func() {
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			log.Printf("MQTT: publish to %s failed: %v", topic, token.Error())
		}
	}()
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	return p != nil && p.client != nil && p.client.IsConnected()
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	if p == nil || p.client == nil {
		return
	}
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	log.Printf("MQTT: publisher stopped")
}
