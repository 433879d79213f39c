// Package codec converts between MQTT wire messages and request models and
// builds the responses sent back to requesters.
package codec

import (
	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

// Marshal encodes v in the wire format
func Marshal(v interface{}) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal decodes wire data into v
func Unmarshal(data []byte, v interface{}) error {
	return api.Unmarshal(data, v)
}
