package codec

import (
	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
)

// Responder sends a response envelope; broker.Facade implements it
type Responder interface {
	Response(receiver, topic, traceID string, qos model.QoS, status model.Status, payload interface{}) error
}

// Responses answers requests on their response topic. Requests without one
// are fire-and-forget and get no answer.
type Responses struct {
	responder Responder
	origin    string
	logger    *logger.Logger
}

// NewResponses builds responses sent through responder. origin names this
// service in error bodies.
func NewResponses(responder Responder, origin string, log *logger.Logger) *Responses {
	if log == nil {
		log = logger.NewNop()
	}
	return &Responses{
		responder: responder,
		origin:    origin,
		logger:    log,
	}
}

// Success sends payload with status back to the requester
func (r *Responses) Success(req *model.Request, status model.Status, payload interface{}) error {
	if !req.HasResponseTopic() {
		return nil
	}
	return r.responder.Response(req.Requester, req.ResponseTopic, req.TraceID, req.QoS, status, payload)
}

// Error maps err onto a status and sends a structured error body back to the requester
func (r *Responses) Error(err error, req *model.Request) error {
	if !req.HasResponseTopic() {
		if err != nil {
			r.logger.Debug("dropping error without response topic", "error", err)
		}
		return nil
	}

	status := rpcerr.StatusOf(err)
	body := ErrorBody(err, r.origin)

	return r.responder.Response(req.Requester, req.ResponseTopic, req.TraceID, req.QoS, status, body)
}

// ErrorBody describes err in the wire error format
func ErrorBody(err error, origin string) model.ErrorBody {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return model.ErrorBody{
		ErrorMessage:  message,
		ErrorCode:     rpcerr.StatusOf(err).Code(),
		ExceptionType: rpcerr.KindOf(err).String(),
		Origin:        origin,
	}
}
