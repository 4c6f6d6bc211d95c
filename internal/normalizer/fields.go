package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// path is a dotted field location inside a decoded body.
type path []string

func p(s string) path {
	return strings.Split(s, ".")
}

func lookup(m map[string]interface{}, fp path) (interface{}, bool) {
	var cur interface{} = m
	for _, seg := range fp {
		node, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// str renders scalar values; objects and lists yield "".
func str(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// first returns the first non-empty scalar found at the candidate paths.
func first(m map[string]interface{}, candidates ...path) string {
	for _, fp := range candidates {
		if v, ok := lookup(m, fp); ok {
			if s := str(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func mapAt(m map[string]interface{}, fp path) map[string]interface{} {
	v, _ := lookup(m, fp)
	return asMap(v)
}

// asList accepts JSON arrays and form-decoded maps keyed by indexes.
func asList(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case map[string]interface{}:
		keys := make([]int, 0, len(t))
		for k := range t {
			i, err := strconv.Atoi(k)
			if err != nil {
				return nil
			}
			keys = append(keys, i)
		}
		sort.Ints(keys)
		list := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			list = append(list, t[strconv.Itoa(k)])
		}
		return list
	}
	return nil
}

func listAt(m map[string]interface{}, fp path) []interface{} {
	v, _ := lookup(m, fp)
	return asList(v)
}

func boolAt(m map[string]interface{}, fp path) bool {
	v, ok := lookup(m, fp)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}

// Digits reduces a remote identifier such as "5511999999999@s.whatsapp.net"
// to its digits. The domain part and a ":device" suffix are cut first so
// they cannot leak digits into the number.
func Digits(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}
	var b strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// timestamp parses seconds or milliseconds since epoch, falling back to now.
func timestamp(s string, now time.Time) int64 {
	if s == "" {
		return now.Unix()
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Unix()
		}
		return now.Unix()
	}
	if n > 1e12 {
		n /= 1000
	}
	if n <= 0 {
		return now.Unix()
	}
	return n
}

// messageID synthesizes a time-based (v1) id when the payload has none.
func messageID(s string, now time.Time) string {
	if s != "" {
		return s
	}
	id, err := uuid.NewUUID()
	if err != nil {
		return fmt.Sprintf("%d", now.UnixNano())
	}
	return id.String()
}

func hostOf(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}

// Lookup returns the first non-empty scalar found at the dotted paths.
func Lookup(m map[string]interface{}, dotted ...string) string {
	for _, d := range dotted {
		if s := first(m, p(d)); s != "" {
			return s
		}
	}
	return ""
}
