package model

// Status is the MQTT analogue of an HTTP status code
type Status int

const (
	StatusUnknown             Status = 0
	StatusOK                  Status = 200
	StatusCreated             Status = 201
	StatusNoContent           Status = 204
	StatusBadRequest          Status = 400
	StatusUnauthorized        Status = 401
	StatusForbidden           Status = 403
	StatusNotFound            Status = 404
	StatusTimeout             Status = 408
	StatusLocked              Status = 423
	StatusInternalServerError Status = 500
	StatusExternalServerError Status = 503
)

var statusNames = map[Status]string{
	StatusOK:                  "OK",
	StatusCreated:             "CREATED",
	StatusNoContent:           "NO_CONTENT",
	StatusBadRequest:          "BAD_REQUEST",
	StatusUnauthorized:        "UNAUTHORIZED",
	StatusForbidden:           "FORBIDDEN",
	StatusNotFound:            "NOT_FOUND",
	StatusTimeout:             "TIMEOUT",
	StatusLocked:              "LOCKED",
	StatusInternalServerError: "INTERNAL_SERVER_ERROR",
	StatusExternalServerError: "EXTERNAL_SERVER_ERROR",
}

// StatusFromCode resolves a numeric code, returning StatusUnknown for unrecognized values
func StatusFromCode(code int) Status {
	if _, ok := statusNames[Status(code)]; ok {
		return Status(code)
	}
	return StatusUnknown
}

func (s Status) Code() int { return int(s) }

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsSuccess reports whether s belongs to the success family
func (s Status) IsSuccess() bool {
	return s >= 200 && s < 300 && s != StatusUnknown
}
