package model

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageContainer pairs a raw wire message with the topic it arrived on
type MessageContainer struct {
	Topic      string
	Message    mqtt.Message
	ReceivedAt time.Time
}

// NewMessageContainer stamps a container with the arrival time
func NewMessageContainer(topic string, msg mqtt.Message) MessageContainer {
	return MessageContainer{Topic: topic, Message: msg, ReceivedAt: time.Now()}
}

// RequestTemplate is the JSON body of an inbound request
type RequestTemplate struct {
	TraceID        string                 `json:"traceId,omitempty"`
	Authentication string                 `json:"authentication,omitempty"`
	ResponseTopic  string                 `json:"responseTopic,omitempty"`
	QoSRequirement int                    `json:"qosRequirement"`
	Properties     map[string]interface{} `json:"properties,omitempty"`
	Payload        interface{}            `json:"payload,omitempty"`
}

// Request is a parsed inbound request handed to filters and handlers
type Request struct {
	BaseTopic      string
	Operation      string
	TraceID        string
	Authentication string
	ResponseTopic  string
	QoS            QoS
	Properties     map[string]interface{}
	Payload        interface{}

	// Requester is resolved by an authentication filter
	Requester string
}

// HasResponseTopic reports whether the sender expects an answer
func (r *Request) HasResponseTopic() bool {
	return r != nil && r.ResponseTopic != ""
}

// Property returns a request property as a string
func (r *Request) Property(key string) (string, bool) {
	if r == nil || r.Properties == nil {
		return "", false
	}
	v, ok := r.Properties[key].(string)
	return v, ok
}

// PublishEnvelope is the body of an outbound request
type PublishEnvelope struct {
	Sender  string      `json:"sender"`
	Payload interface{} `json:"payload,omitempty"`
}

// ResponseEnvelope is the body of every response
type ResponseEnvelope struct {
	Receiver string      `json:"receiver,omitempty"`
	TraceID  string      `json:"traceId"`
	Status   Status      `json:"status"`
	Payload  interface{} `json:"payload,omitempty"`
}

// ErrorBody is the payload of an error response
type ErrorBody struct {
	ErrorMessage  string `json:"errorMessage"`
	ErrorCode     int    `json:"errorCode"`
	ExceptionType string `json:"exceptionType"`
	Origin        string `json:"origin"`
}
