package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/connection"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/correlate"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapCIPError wraps CIP protocol errors with user-friendly context
func WrapCIPError(err error, operation string) error {
	if err == nil {
		return nil
	}
	reason, hint := cipReason(err)
	return UserFriendlyError{
		Message: fmt.Sprintf("CIP operation failed: %s", operation),
		Reason:  reason,
		Hint:    hint,
		Err:     err,
	}
}

// WrapDecodeError wraps errors from decoding user supplied bytes.
func WrapDecodeError(err error, what string) error {
	if err == nil {
		return nil
	}
	reason := "Input could not be decoded"
	switch {
	case errors.Is(err, codec.ErrShortBuffer):
		reason = "Input ends before the value is complete"
	case errors.Is(err, codec.ErrMalformed):
		reason = "Input is malformed"
	case errors.Is(err, codec.ErrNotImplemented):
		reason = "Input uses an encoding that is not supported"
	case errors.Is(err, codec.ErrInvalidValue):
		reason = "Input value is out of range"
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Cannot decode %s", what),
		Reason:  reason,
		Hint:    "Hex input may contain spaces, colons or a 0x prefix; bytes are little-endian",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Start from the generated defaults and change one section at a time",
		Try:     fmt.Sprintf("cipstack config init --config %s", configPath),
		Err:     err,
	}
}

// WrapCaptureError wraps errors reading a packet capture.
func WrapCaptureError(err error, path string) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Cannot decode capture %s", path),
		Reason:  "The file is not a readable pcap or pcapng capture of EtherNet/IP traffic",
		Hint:    "Only TCP and UDP traffic on port 44818 is decoded",
		Err:     err,
	}
}

func cipReason(err error) (reason, hint string) {
	var serr *protocol.StatusError
	switch {
	case errors.As(err, &serr):
		reason = fmt.Sprintf("Device returned status 0x%02X (%s)", serr.Code, serr.Description)
		switch serr.Code {
		case protocol.StatusPathDestUnknown, protocol.StatusObjectDoesNotExist, protocol.StatusPathSegmentError:
			hint = "The class, instance or route in the path does not exist on the device"
		case protocol.StatusServiceNotSupported, protocol.StatusAttributeNotSupported:
			hint = "The object exists but does not support this service or attribute"
		case protocol.StatusConnectionFailure:
			hint = "The Connection Manager refused the request; see the extended status"
		default:
			hint = "The device may not support this operation"
		}
	case errors.Is(err, correlate.ErrTimeout):
		reason = "Device did not respond within timeout period"
		hint = "Increase messaging.request_timeout_ms or check the route"
	case errors.Is(err, connection.ErrNotEstablished):
		reason = "The connection is not established"
		hint = "Open the connection before sending connected messages"
	case errors.Is(err, codec.ErrShortBuffer), errors.Is(err, codec.ErrMalformed):
		reason = "Received invalid or malformed response from device"
		hint = "The reply does not match the expected data type"
	default:
		reason = "CIP protocol error occurred"
	}
	return reason, hint
}
