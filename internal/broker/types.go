// Package broker manages broker connections and exposes the publish,
// subscribe and response operations used by business code.
package broker

import (
	"errors"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-rpc/config"
)

var (
	// ErrNotConnected is returned when a connection is absent or down
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrTokenTimeout is returned when the transport does not complete an operation in time
	ErrTokenTimeout = errors.New("mqtt: operation timed out")
)

const (
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesce     = 250
	clientIDPrefix        = "mqtt-rpc"
)

// DefaultOperationTimeout bounds subscribe, unsubscribe and publish calls
const DefaultOperationTimeout = 5 * time.Second

// ClientFactory builds a paho client from options
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// ConnectOptions describes how to reach a broker
type ConnectOptions struct {
	Address        string
	Port           int
	Secure         bool
	ClientID       string
	Username       string
	Password       string
	TLS            config.TLSConfig
	ConnectTimeout time.Duration
}

// ID returns the connection identifier of these options
func (o ConnectOptions) ID() string {
	return ConnectionID(o.Address, o.Port, o.Secure)
}

// ConnectOptionsFromConfig builds options for the service's own broker
func ConnectOptionsFromConfig(cfg config.MQTTConfig) ConnectOptions {
	return ConnectOptions{
		Address:        cfg.Address,
		Port:           cfg.Port,
		Secure:         cfg.Secure,
		ClientID:       cfg.ClientID,
		Username:       cfg.Username,
		Password:       cfg.Password,
		TLS:            cfg.TLS,
		ConnectTimeout: cfg.ConnectTimeout,
	}
}

// ConnectionID derives the cache key of a broker connection. Equal
// address, port and security always produce the same key.
func ConnectionID(address string, port int, secure bool) string {
	return address + ":" + strconv.Itoa(port) + ":" + strconv.FormatBool(secure)
}

// WaitToken waits for a transport token and returns its error
func WaitToken(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return ErrTokenTimeout
	}
	return token.Error()
}
