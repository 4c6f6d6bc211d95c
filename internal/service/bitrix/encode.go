package bitrix

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Encode flattens nested params into PHP bracket notation, the form the
// CRM REST endpoint parses: MESSAGES[0][user][id]=5511...
func Encode(params map[string]interface{}) url.Values {
	values := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		encodeValue(values, k, params[k])
	}
	return values
}

func encodeValue(values url.Values, key string, v interface{}) {
	switch t := v.(type) {
	case nil:
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			encodeValue(values, key+"["+k+"]", t[k])
		}
	case map[string]string:
		for k, s := range t {
			values.Add(key+"["+k+"]", s)
		}
	case []interface{}:
		for i, item := range t {
			encodeValue(values, key+"["+strconv.Itoa(i)+"]", item)
		}
	case []string:
		for i, s := range t {
			values.Add(key+"["+strconv.Itoa(i)+"]", s)
		}
	case string:
		values.Add(key, t)
	case bool:
		if t {
			values.Add(key, "Y")
		} else {
			values.Add(key, "N")
		}
	case int:
		values.Add(key, strconv.Itoa(t))
	case int64:
		values.Add(key, strconv.FormatInt(t, 10))
	case float64:
		values.Add(key, strconv.FormatFloat(t, 'f', -1, 64))
	case json.Number:
		values.Add(key, t.String())
	default:
		values.Add(key, fmt.Sprint(t))
	}
}
