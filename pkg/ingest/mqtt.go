package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT subscriber.
type MQTTConfig struct {
	Broker   string // tcp://host:1883
	Topic    string // may contain wildcards, e.g. jigsaw/samples/#
	ClientID string
}

// SourceFromTopic names the source after the last topic level, so
// "jigsaw/samples/car" feeds source "car" unless the payload says otherwise.
func SourceFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// RunMQTT subscribes to cfg.Topic and applies every message until ctx ends.
// Messages are handed to a single worker goroutine so panels refresh in
// arrival order.
func RunMQTT(ctx context.Context, cfg MQTTConfig, sink *Sink) error {
	if cfg.Broker == "" || cfg.Topic == "" {
		return fmt.Errorf("mqtt broker and topic are required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("jigsaw-map-%d", time.Now().UnixNano())
	}

	type message struct {
		topic   string
		payload []byte
	}
	inbox := make(chan message, 256)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		// resubscribe after every reconnect
		token := c.Subscribe(cfg.Topic, 1, func(_ mqtt.Client, m mqtt.Message) {
			select {
			case inbox <- message{topic: m.Topic(), payload: m.Payload()}:
			default:
				log.Printf("MQTT inbox full, dropping message on %s", m.Topic())
			}
		})
		token.Wait()
		if token.Error() != nil {
			log.Printf("MQTT subscribe %s: %v", cfg.Topic, token.Error())
			return
		}
		log.Printf("MQTT subscribed to %s on %s", cfg.Topic, cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	defer client.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-inbox:
			if err := sink.Handle(ctx, "mqtt", m.payload, SourceFromTopic(m.topic)); err != nil {
				log.Printf("MQTT message on %s: %v", m.topic, err)
			}
		}
	}
}
