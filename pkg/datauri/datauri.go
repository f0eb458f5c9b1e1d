// Package datauri encodes binary assets as data URIs and back.
package datauri

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Encode wraps data as a base64 data URI with the given MIME type.
func Encode(mime string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}

// Decode splits a base64 data URI into its MIME type and raw bytes.
func Decode(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("datauri: missing data: prefix")
	}
	header, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("datauri: missing payload separator")
	}
	mime, _, _ = strings.Cut(header, ";")
	data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("datauri: decode payload: %w", err)
	}
	return mime, data, nil
}
