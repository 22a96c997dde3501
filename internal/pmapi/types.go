package pmapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Timestamp is a sample time in seconds since the epoch. pmwebapi sends it
// as {"s": sec, "us": usec}; a plain number of seconds is accepted too.
type Timestamp float64

// UnmarshalJSON accepts both timestamp encodings.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = 0
		return nil
	}
	if data[0] == '{' {
		var parts struct {
			S  int64 `json:"s"`
			US int64 `json:"us"`
		}
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		*t = Timestamp(float64(parts.S) + float64(parts.US)/1e6)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp(f)
	return nil
}

// MarshalJSON writes the pmwebapi {"s","us"} form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	sec, frac := math.Modf(float64(t))
	return json.Marshal(struct {
		S  int64 `json:"s"`
		US int64 `json:"us"`
	}{int64(sec), int64(math.Round(frac * 1e6))})
}

// Value is an instance value. Numeric metrics carry a JSON number, string
// metrics (pmcd.hostname) a JSON string.
type Value struct {
	num     float64
	str     string
	numeric bool
}

// NumberValue returns a numeric Value.
func NumberValue(f float64) Value { return Value{num: f, numeric: true} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{str: s} }

// UnmarshalJSON keeps numbers as numbers and everything else as text.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = NumberValue(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}
	*v = StringValue(string(data))
	return nil
}

// MarshalJSON writes the value in its original JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.str)
}

// Float returns the numeric value and whether there is one.
func (v Value) Float() (float64, bool) {
	return v.num, v.numeric
}

// String returns the value as text.
func (v Value) String() string {
	if v.numeric {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}

// Instance is one instance's value in a fetch result. Instance is nil for
// metrics without an instance domain.
type Instance struct {
	Instance *int  `json:"instance,omitempty"`
	Value    Value `json:"value"`
}

// ID returns the instance id, 1 when the metric has no instance domain.
func (i Instance) ID() int {
	if i.Instance == nil {
		return 1
	}
	return *i.Instance
}

// MetricValues is one metric in a fetch result.
type MetricValues struct {
	Name      string     `json:"name"`
	PMID      uint32     `json:"pmid,omitempty"`
	Instances []Instance `json:"instances"`
}

// FetchResponse is a _fetch result plus the instance names resolved for it.
type FetchResponse struct {
	Timestamp Timestamp      `json:"timestamp"`
	Values    []MetricValues `json:"values"`

	// InstanceNames maps metric name -> instance id -> instance name.
	InstanceNames map[string]map[int]string `json:"-"`
}

// fetchBody is the _fetch wire shape. Some servers inline instance names
// as inames: {metric: {inames: {id: name}}}.
type fetchBody struct {
	Timestamp Timestamp      `json:"timestamp"`
	Values    []MetricValues `json:"values"`
	InNames   map[string]struct {
		InNames map[int]string `json:"inames"`
	} `json:"inames,omitempty"`
}

// InstanceName returns the resolved name of a metric instance, or "" when
// none is known.
func (r *FetchResponse) InstanceName(metric string, iid int) string {
	if r.InstanceNames == nil {
		return ""
	}
	return r.InstanceNames[metric][iid]
}

type contextResponse struct {
	Context int `json:"context"`
}

type indomResponse struct {
	InDom     uint32 `json:"indom"`
	Instances []struct {
		Instance int    `json:"instance"`
		Name     string `json:"name"`
	} `json:"instances"`
}

type errorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}
