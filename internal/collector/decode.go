package collector

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/telhawk-systems/formrelay/internal/models"
)

// ErrMalformedPayload marks a datagram that is not URL-encoded form data.
var ErrMalformedPayload = errors.New("malformed payload")

// Decode parses an application/x-www-form-urlencoded body into an ordered
// record. Pairs are split on '&', each pair on its first '=', then '+' and
// percent escapes are decoded and values are trimmed of surrounding
// whitespace. A segment without '=', a bad escape or non UTF-8 text makes the
// whole payload malformed.
func Decode(payload []byte) (models.SubmissionRecord, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedPayload)
	}

	segments := strings.Split(string(payload), "&")
	record := make(models.SubmissionRecord, 0, len(segments))

	for i, segment := range segments {
		rawKey, rawValue, ok := strings.Cut(segment, "=")
		if !ok {
			return nil, fmt.Errorf("%w: field %d has no '='", ErrMalformedPayload, i+1)
		}

		key, err := unescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d name: %v", ErrMalformedPayload, i+1, err)
		}
		value, err := unescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q value: %v", ErrMalformedPayload, key, err)
		}

		record = append(record, models.Field{Name: key, Value: strings.TrimSpace(value)})
	}

	return record, nil
}

func unescape(s string) (string, error) {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(out) {
		return "", errors.New("decoded text is not valid UTF-8")
	}
	return out, nil
}
