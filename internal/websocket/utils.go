package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stemsi/exstem-viva/internal/validator"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// ErrUnknownAction is returned by Parse for an action outside the protocol.
var ErrUnknownAction = errors.New("unknown action")

// Writer is the subset of *websocket.Conn used to send frames.
type Writer interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
}

// WriteTyped sends a strongly-typed payload over the WebSocket.
func WriteTyped(conn Writer, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteJSON sends an event frame with data.
func WriteJSON(conn Writer, event Event, data interface{}) error {
	return WriteTyped(conn, Message{Event: event, Data: data})
}

// WriteError sends an error frame that cannot be retried.
func WriteError(conn Writer, errMsg string) error {
	return WriteJSON(conn, EventError, ErrorPayload{Message: errMsg})
}

// ReadMessage reads one raw frame with a read deadline.
func ReadMessage(conn *websocket.Conn) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	_, raw, err := conn.ReadMessage()
	return raw, err
}

// Parse decodes a client frame into its typed request and validates it.
// Actions without a body come back as a RequestEnvelope.
func Parse(raw []byte) (Action, interface{}, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("invalid frame: %w", err)
	}

	var req interface{}
	switch env.Action {
	case ActionHello:
		req = &HelloRequest{}
	case ActionSignal:
		req = &SignalRequest{}
	case ActionAnswer:
		req = &AnswerRequest{}
	case ActionSubmit, ActionResume, ActionRetry, ActionExit, ActionPing:
		return env.Action, &env, nil
	default:
		return env.Action, nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}

	if err := json.Unmarshal(raw, req); err != nil {
		return env.Action, nil, fmt.Errorf("invalid %s frame: %w", env.Action, err)
	}
	if err := validator.Struct(req); err != nil {
		return env.Action, nil, fmt.Errorf("invalid %s frame: %s", env.Action, describe(err))
	}
	return env.Action, req, nil
}

func describe(err error) string {
	fields := validator.TranslateErrors(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fields[k])
	}
	return strings.Join(msgs, "; ")
}
