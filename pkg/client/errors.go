package client

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/robert-malhotra/go-rapi-client/pkg/query"
)

var (
	// ErrInvalidBaseURL is returned when the base URL is not absolute.
	ErrInvalidBaseURL = errors.New("rapi: invalid base URL")
	// ErrNilHTTPClient indicates a nil HTTP client was provided.
	ErrNilHTTPClient = errors.New("rapi: http client cannot be nil")
	// ErrUnknownCollection is returned when a collection name, id or alias
	// matches nothing in the collection tree.
	ErrUnknownCollection = errors.New("rapi: unknown collection")
	// ErrUnknownField is the query builder's sentinel, re-exported.
	ErrUnknownField = query.ErrUnknownField
)

// Kind classifies an Error. It is decided once, at the transport.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransient covers timeouts, connection failures, 5xx other than
	// 500, an open circuit breaker and the maintenance page.
	KindTransient
	// KindAuth is a 401. It sets the client's persistent auth flag.
	KindAuth
	// KindBadRequest is a 400.
	KindBadRequest
	// KindNotFound is a 404.
	KindNotFound
	// KindServer is a 500.
	KindServer
	// KindService is a service exception reported on any other status.
	KindService
	// KindCanceled means the caller's context ended.
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindTransient:  "transient",
	KindAuth:       "auth",
	KindBadRequest: "bad_request",
	KindNotFound:   "not_found",
	KindServer:     "server",
	KindService:    "service",
	KindCanceled:   "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error carrier of the client. Messages keeps the
// fragments reported by the service in their original order.
type Error struct {
	Kind       Kind
	StatusCode int
	URL        string
	Messages   []string
	Err        error

	timeout bool
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := strings.Join(e.Messages, " ")
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = fmt.Sprintf("%s error", e.Kind)
	}
	return "rapi: " + msg
}

// List returns the service-provided message fragments.
func (e *Error) List() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.Messages))
	copy(out, e.Messages)
	return out
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether the error may be retried.
func (e *Error) Temporary() bool {
	return e != nil && e.Kind == KindTransient
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return kindOf(err) == KindAuth }

// IsTransient reports whether err is a retryable failure.
func IsTransient(err error) bool { return kindOf(err) == KindTransient }

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// maintenanceMarker is served in place of JSON while the service is down.
var maintenanceMarker = []byte("BRB!")

// statusError builds the Error for a non-2xx response.
func statusError(status int, body []byte, rawURL string) *Error {
	e := &Error{StatusCode: status, URL: rawURL}
	details := exceptionMessages(body)

	switch {
	case status == 401:
		e.Kind = KindAuth
		e.Messages = []string{"401 Unauthorized: the username and/or password are incorrect."}
	case status == 400:
		e.Kind = KindBadRequest
		e.Messages = []string{"400 Bad Request: a bad request occurred while trying to reach URL " + rawURL + "."}
	case status == 404:
		e.Kind = KindNotFound
		e.Messages = []string{"404 Not Found: could not find URL " + rawURL + "."}
	case status == 500:
		e.Kind = KindServer
		e.Messages = []string{"500 Internal Server Error: an internal server error occurred while trying to reach URL " + rawURL + "."}
	case status > 500 && status < 600:
		e.Kind = KindTransient
		e.Messages = []string{fmt.Sprintf("%d server error at URL %s.", status, rawURL)}
	default:
		e.Kind = KindService
		if len(details) == 0 {
			e.Messages = []string{fmt.Sprintf("unexpected status %d at URL %s.", status, rawURL)}
		}
	}
	e.Messages = append(e.Messages, details...)
	return e
}

// exceptionMessages extracts the service exception carried by a non-JSON
// body: the ExceptionText element when present, otherwise the text of every
// <p> paragraph. A JSON body or an unreadable one yields nothing.
func exceptionMessages(body []byte) []string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] == '{' || trimmed[0] == '[' {
		return nil
	}

	dec := xml.NewDecoder(bytes.NewReader(trimmed))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var (
		paragraphs []string
		exception  string
		capture    string
		text       strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			if !errors.Is(err, io.EOF) && exception == "" && len(paragraphs) == 0 {
				return nil
			}
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if strings.Contains(name, "ExceptionText") || strings.EqualFold(name, "p") {
				capture = name
				text.Reset()
			}
		case xml.CharData:
			if capture != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if capture == "" || t.Name.Local != capture {
				continue
			}
			s := strings.Join(strings.Fields(text.String()), " ")
			if strings.Contains(capture, "ExceptionText") {
				exception = s
			} else if s != "" {
				paragraphs = append(paragraphs, s)
			}
			capture = ""
		}
	}
	if exception != "" {
		return []string{exception}
	}
	return paragraphs
}
