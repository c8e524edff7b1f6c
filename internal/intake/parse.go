// Package intake turns inbound webhook bodies into gated, deduplicated and
// journalled signals.
package intake

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tradegate.io/server/models"
)

// Field fallbacks, first non-empty wins.
var (
	symbolKeys    = []string{"symbol", "ticker", "s"}
	timeframeKeys = []string{"tf", "timeframe", "interval"}
	timestampKeys = []string{"ts", "timestamp", "time", "t"}
	idKeys        = []string{"id", "alert_id", "uid", "uuid"}
)

const (
	defaultSymbol    = "UNKNOWN"
	defaultTimeframe = "NA"
)

// Decode parses body as a JSON object. A body that is a JSON string holding
// a JSON object is unwrapped once.
func Decode(body []byte) (map[string]interface{}, error) {
	var v interface{}
	if err := decodeJSON(body, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}

	if s, ok := v.(string); ok {
		if err := decodeJSON([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("%w: nested payload: %v", models.ErrInvalidRequest, err)
		}
	}

	payload, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: payload must be a JSON object", models.ErrInvalidRequest)
	}
	return payload, nil
}

// Parse decodes body and extracts the signal fields. A missing timestamp
// becomes now in unix seconds.
func Parse(body []byte, now time.Time) (models.Signal, error) {
	payload, err := Decode(body)
	if err != nil {
		return models.Signal{}, err
	}

	sig := models.Signal{
		Symbol:    pick(payload, symbolKeys, defaultSymbol),
		Timeframe: pick(payload, timeframeKeys, defaultTimeframe),
		Timestamp: pick(payload, timestampKeys, strconv.FormatInt(now.Unix(), 10)),
		ID:        pick(payload, idKeys, ""),
		Raw:       body,
	}
	return sig, nil
}

// Hash is the idempotency key of sig: sha256 over "symbol|tf|ts|id|" and the raw body.
func Hash(sig models.Signal) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", sig.Symbol, sig.Timeframe, sig.Timestamp, sig.ID)
	h.Write([]byte("|"))
	h.Write(sig.Raw)
	return hex.EncodeToString(h.Sum(nil))
}

func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func pick(payload map[string]interface{}, keys []string, fallback string) string {
	for _, k := range keys {
		if s := stringify(payload[k]); s != "" {
			return s
		}
	}
	return fallback
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		if t.String() == "0" {
			return ""
		}
		return t.String()
	case bool:
		if !t {
			return ""
		}
		return "true"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
