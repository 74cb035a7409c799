package logging

import (
	"log/slog"
	"time"
)

// Common field names so the front-end and collector log the same keys.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldRemote    = "remote"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldBytes     = "bytes"
	FieldError     = "error"
	FieldAddr      = "addr"
	FieldEntryKey  = "entry_key"
	FieldFields    = "fields"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Remote returns a slog attribute for the peer address.
func Remote(addr string) slog.Attr {
	return slog.String(FieldRemote, addr)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

func Bytes(n int) slog.Attr {
	return slog.Int(FieldBytes, n)
}

// Error returns a slog attribute for an error. A nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Addr returns a slog attribute for a listen or target address.
func Addr(addr string) slog.Attr {
	return slog.String(FieldAddr, addr)
}

// EntryKey returns a slog attribute for the store key of a submission.
func EntryKey(key string) slog.Attr {
	return slog.String(FieldEntryKey, key)
}

// Fields returns a slog attribute for the number of fields in a submission.
func Fields(n int) slog.Attr {
	return slog.Int(FieldFields, n)
}
