// ABOUTME: Decodes inbound frames and encodes outbound messages as JSON
// ABOUTME: Unparsable frames surface as *Error so the session can close the connection

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed is wrapped by every *Error.
var ErrMalformed = errors.New("malformed message")

// Error reports a frame that could not be decoded.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformed, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

// Decode parses one client frame. A frame with an unrecognized or missing
// type decodes successfully; callers decide whether to ignore it.
func Decode(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, &Error{Err: err}
	}
	return msg, nil
}

// Encode serializes an outbound message.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return data, nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
