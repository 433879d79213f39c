package codec

import (
	"reflect"

	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
)

// ParseMessage decodes an inbound container into a request. It returns the
// authentication key separately so filters can verify it before the handler runs.
func ParseMessage(container *model.MessageContainer) (string, *model.Request, error) {
	if container == nil {
		return "", nil, rpcerr.Usage("message container cannot be nil")
	}
	if container.Message == nil {
		return "", nil, rpcerr.Usage("message container for %s carries no message", container.Topic)
	}

	var template model.RequestTemplate
	if err := Unmarshal(container.Message.Payload(), &template); err != nil {
		return "", nil, rpcerr.InvalidInput(err, "failed to decode request on %s", container.Topic)
	}

	baseTopic, err := model.BaseTopicOf(container.Topic)
	if err != nil {
		return "", nil, rpcerr.InvalidInput(err, "failed to resolve operation")
	}

	qos, err := model.ParseQoS(template.QoSRequirement)
	if err != nil {
		return "", nil, rpcerr.InvalidInput(err, "failed to decode request on %s", container.Topic)
	}

	req := &model.Request{
		BaseTopic:      baseTopic,
		Operation:      model.NormalizeOperation(container.Topic[len(baseTopic):]),
		TraceID:        template.TraceID,
		Authentication: template.Authentication,
		ResponseTopic:  template.ResponseTopic,
		QoS:            qos,
		Properties:     template.Properties,
		Payload:        template.Payload,
	}

	return template.Authentication, req, nil
}

// ReadPayload coerces a loosely typed payload, such as a decoded JSON map,
// into T. A nil value yields the zero T.
func ReadPayload[T any](value interface{}) (T, error) {
	var out T
	if value == nil {
		return out, nil
	}
	if typed, ok := value.(T); ok {
		return typed, nil
	}

	data, err := Marshal(value)
	if err != nil {
		return out, rpcerr.InvalidInput(err, "failed to read payload as %s", typeName[T]())
	}
	if err := Unmarshal(data, &out); err != nil {
		return out, rpcerr.InvalidInput(err, "failed to read payload as %s", typeName[T]())
	}
	return out, nil
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
