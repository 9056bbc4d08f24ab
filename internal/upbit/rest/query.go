package rest

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Params holds request parameters keyed by field name.
// Keys are converted to snake_case when rendered; nil values are skipped.
// Slice values render as one key[]=element pair per element.
type Params map[string]any

type pair struct {
	key   string
	value string
}

// QueryString renders params as the raw string used for the query hash.
// Pairs are sorted by key and values are not percent-encoded.
func (p Params) QueryString() string {
	return joinPairs(p.pairs(), false)
}

// Encode renders params as an RFC 3986 percent-encoded query for the wire.
func (p Params) Encode() string {
	return joinPairs(p.pairs(), true)
}

// Body returns the params keyed by their snake_case names, ready for a JSON body.
func (p Params) Body() map[string]any {
	body := make(map[string]any, len(p))
	for k, v := range p {
		if v == nil {
			continue
		}
		body[ToSnakeCase(k)] = v
	}
	return body
}

func (p Params) pairs() []pair {
	pairs := make([]pair, 0, len(p))
	for k, v := range p {
		if v == nil {
			continue
		}
		key := ToSnakeCase(k)
		switch vv := v.(type) {
		case []string:
			for _, e := range vv {
				pairs = append(pairs, pair{key: key + "[]", value: e})
			}
		case []any:
			for _, e := range vv {
				pairs = append(pairs, pair{key: key + "[]", value: formatValue(e)})
			}
		default:
			pairs = append(pairs, pair{key: key, value: formatValue(v)})
		}
	}

	// stable so array elements keep their list order
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].key < pairs[j].key
	})
	return pairs
}

func joinPairs(pairs []pair, encode bool) string {
	var sb strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		if encode {
			sb.WriteString(escape(kv.key))
			sb.WriteByte('=')
			sb.WriteString(escape(kv.value))
		} else {
			sb.WriteString(kv.key)
			sb.WriteByte('=')
			sb.WriteString(kv.value)
		}
	}
	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func formatValue(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case fmt.Stringer:
		return vv.String()
	case int:
		return strconv.Itoa(vv)
	case int64:
		return strconv.FormatInt(vv, 10)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(vv)
	default:
		return fmt.Sprint(vv)
	}
}

// ToSnakeCase converts a camelCase field name to snake_case.
// Names that are already snake_case are returned unchanged.
func ToSnakeCase(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) {
			sb.WriteByte('_')
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
