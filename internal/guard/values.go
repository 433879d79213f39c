package guard

import (
	"mqtt-rpc/internal/model"
)

const maxFlattenDepth = 8

// requestValues exposes a request to conditions as flat dotted names:
// operation, baseTopic, topic, traceId, requester, responseTopic, qos,
// authenticated, properties.<key> and payload[.<key>...].
func requestValues(authKey string, req *model.Request) map[string]interface{} {
	values := map[string]interface{}{
		"operation":     req.Operation,
		"baseTopic":     req.BaseTopic,
		"topic":         model.FullTopic(req.BaseTopic, req.Operation),
		"traceId":       req.TraceID,
		"requester":     req.Requester,
		"responseTopic": req.ResponseTopic,
		"qos":           float64(req.QoS),
		"authenticated": authKey != "",
	}

	for key, value := range req.Properties {
		flatten("properties."+key, value, values, 1)
	}
	if req.Payload != nil {
		flatten("payload", req.Payload, values, 0)
	}

	return values
}

func flatten(prefix string, value interface{}, out map[string]interface{}, depth int) {
	nested, ok := value.(map[string]interface{})
	if !ok || depth >= maxFlattenDepth {
		out[prefix] = value
		return
	}
	for key, v := range nested {
		flatten(prefix+"."+key, v, out, depth+1)
	}
}
