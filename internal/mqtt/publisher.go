package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/yegors/metarboard/internal/config"
	"github.com/yegors/metarboard/internal/weather"
	"github.com/yegors/metarboard/pkg/logger"
)

const (
	publishTimeout = 5 * time.Second
	queueSize      = 16
)

// StationSource provides the current view of a station
type StationSource interface {
	Station(icao string) (weather.StationView, error)
}

// Event is the payload published to <prefix>/events
type Event struct {
	Type weather.NotificationType `json:"type"`
	Data map[string]any           `json:"data"`
}

// Publisher mirrors store notifications to an MQTT broker
type Publisher struct {
	client    mqtt.Client
	cfg       config.MQTTConfig
	source    StationSource
	logger    *logger.Logger
	queue     chan weather.Notification
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPublisher creates a publisher. Call Connect and Start before notifications flow.
func NewPublisher(cfg config.MQTTConfig, source StationSource, log *logger.Logger) *Publisher {
	p := &Publisher{
		cfg:    cfg,
		source: source,
		logger: log.Named("mqtt-publisher"),
		queue:  make(chan weather.Notification, queueSize),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("MQTT connected", logger.String("broker", cfg.Broker), logger.Int("port", cfg.Port))
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("MQTT connection lost", logger.Error(err))
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the initial broker connection, respecting ctx and Disconnect
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// Start launches the publishing worker
func (p *Publisher) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case n := <-p.queue:
				if err := p.publish(n); err != nil {
					p.logger.Warn("Failed to publish notification",
						logger.String("type", string(n.Type)),
						logger.Error(err))
				}
			case <-p.stopCh:
				return
			}
		}
	}()
}

// Notify implements weather.Notifier. It never blocks; publishing happens on
// the worker started by Start.
func (p *Publisher) Notify(n weather.Notification) {
	select {
	case p.queue <- n:
	default:
		p.logger.Warn("MQTT queue full, dropping notification", logger.String("type", string(n.Type)))
	}
}

// publish sends the event and the retained state of every changed station
func (p *Publisher) publish(n weather.Notification) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	event, err := json.Marshal(Event{Type: n.Type, Data: n.Data()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.send(p.EventsTopic(), false, event); err != nil {
		return err
	}

	for _, icao := range n.Changed {
		view, err := p.source.Station(icao)
		if err != nil {
			p.logger.Debug("Skipping station", logger.String("icao", icao), logger.Error(err))
			continue
		}
		payload, err := json.Marshal(view)
		if err != nil {
			return fmt.Errorf("marshal station %s: %w", icao, err)
		}
		if err := p.send(p.StationTopic(icao), true, payload); err != nil {
			return err
		}
	}

	p.logger.Debug("Published notification",
		logger.String("type", string(n.Type)),
		logger.Int("stations", len(n.Changed)))
	return nil
}

func (p *Publisher) send(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, byte(p.cfg.QoS), retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// EventsTopic returns the topic carrying notifications
func (p *Publisher) EventsTopic() string {
	return p.cfg.TopicPrefix + "/events"
}

// StationTopic returns the retained state topic of one station
func (p *Publisher) StationTopic(icao string) string {
	return p.cfg.TopicPrefix + "/stations/" + icao
}

// IsConnected returns whether the client is connected
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect stops the worker and closes the connection. Safe to call more than once.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("MQTT disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
