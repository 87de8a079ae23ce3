package negotiation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

// ClientHeader is the request header identifying the client build.
const ClientHeader = "POS-Client"

// IdempotencyKeyHeader carries the submission key on order creation.
const IdempotencyKeyHeader = "Idempotency-Key"

// ParseClientHeader extracts client identity from the POS-Client header.
// Format: name="register", version="1.4.2" (RFC 8941 Dictionary).
//
// Examples:
//   - name="register", version="1.4.2" → {register 1.4.2}
//   - version="2.0.0";build=77         → {"" 2.0.0} (params ignored)
//
// Returns error if header is empty, malformed, or missing the version key.
func ParseClientHeader(header string) (ClientInfo, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ClientInfo{}, errors.New("empty POS-Client header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return ClientInfo{}, fmt.Errorf("invalid POS-Client header: %w", err)
	}

	version, err := dictString(dict, "version")
	if err != nil {
		return ClientInfo{}, err
	}
	if version == "" {
		return ClientInfo{}, errors.New("version key not found in POS-Client header")
	}

	name, err := dictString(dict, "name")
	if err != nil {
		return ClientInfo{}, err
	}

	return ClientInfo{Name: name, Version: version}, nil
}

// dictString returns the string value for key, or "" when absent.
func dictString(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", nil
	}

	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}

	s, ok := item.Value.(string)
	if !ok {
		return "", fmt.Errorf("%s value must be a string", key)
	}
	return s, nil
}

// ParseIdempotencyKey extracts the key from an Idempotency-Key header.
// The value is an RFC 8941 sf-string, e.g. "8e03978e-40d5-43e8-bc93-6894a57f9324".
// An absent header yields an empty key and no error.
func ParseIdempotencyKey(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil
	}

	item, err := httpsfv.UnmarshalItem([]string{header})
	if err != nil {
		return "", fmt.Errorf("invalid Idempotency-Key header: %w", err)
	}

	key, ok := item.Value.(string)
	if !ok {
		return "", errors.New("idempotency key must be a string")
	}
	if key == "" {
		return "", errors.New("idempotency key must not be empty")
	}
	return key, nil
}
