// Package payload reads webhook bodies of unknown shape. JSON bodies are
// decoded as-is; url-encoded forms are expanded from PHP bracket notation
// (data[FIELDS][MESSAGE][text]=hi) into the same nested map structure.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// MaxBodySize bounds the webhook body read into memory.
const MaxBodySize = 4 << 20

// Read decodes the request body and also returns the raw bytes.
func Read(r *http.Request) (map[string]interface{}, []byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	body, err := Decode(r.Header.Get("Content-Type"), raw)
	return body, raw, err
}

// Decode parses raw according to the content type. An unknown content type
// is tried as JSON first and then as a form.
func Decode(contentType string, raw []byte) (map[string]interface{}, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := bytes.TrimSpace(raw)

	switch {
	case len(trimmed) == 0:
		return map[string]interface{}{}, nil
	case mediaType == "application/json":
		return decodeJSON(trimmed)
	case mediaType == "application/x-www-form-urlencoded":
		return decodeForm(string(trimmed))
	}

	if trimmed[0] == '{' {
		if body, err := decodeJSON(trimmed); err == nil {
			return body, nil
		}
	}
	return decodeForm(string(trimmed))
}

func decodeJSON(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode json body: %w", err)
	}
	if body == nil {
		body = map[string]interface{}{}
	}
	return body, nil
}

func decodeForm(raw string) (map[string]interface{}, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("decode form body: %w", err)
	}
	return Expand(values), nil
}

// Expand turns bracketed form keys into nested maps. Maps whose keys are the
// consecutive integers 0..n-1 become slices.
func Expand(values url.Values) map[string]interface{} {
	root := map[string]interface{}{}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := splitKey(key)
		for _, v := range values[key] {
			insert(root, path, v)
		}
	}

	for k, child := range root {
		root[k] = compact(child)
	}
	return root
}

func splitKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 {
		return []string{key}
	}
	path := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 && rest[0] == '[' {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			// malformed: keep the remainder as a literal segment
			path = append(path, rest[1:])
			break
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path
}

func insert(node map[string]interface{}, path []string, value string) {
	for i, seg := range path {
		last := i == len(path)-1
		if seg == "" {
			seg = strconv.Itoa(len(node))
		}
		if last {
			node[seg] = value
			return
		}
		child, ok := node[seg].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			node[seg] = child
		}
		node = child
	}
}

func compact(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = compact(child)
	}
	if len(m) == 0 {
		return m
	}
	list := make([]interface{}, len(m))
	for k, child := range m {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 || idx >= len(m) || strconv.Itoa(idx) != k {
			return m
		}
		list[idx] = child
	}
	return list
}
