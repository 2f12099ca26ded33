package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// duration is a time.Duration that reads and writes JSON as "1ms" style
// strings. Plain integers are still taken as nanoseconds.
type duration time.Duration

func (d duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case float64:
		*d = duration(v)
	case string:
		p, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = duration(p)
	default:
		return fmt.Errorf("duration %s is neither a string nor a number", b)
	}
	return nil
}

func (c ClockConfig) MarshalJSON() ([]byte, error) {
	type plain ClockConfig
	return json.Marshal(struct {
		plain
		Interval duration `json:"interval"`
	}{plain(c), duration(c.Interval)})
}

func (c *ClockConfig) UnmarshalJSON(b []byte) error {
	type plain ClockConfig
	aux := struct {
		*plain
		Interval duration `json:"interval"`
	}{(*plain)(c), duration(c.Interval)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.Interval = time.Duration(aux.Interval)
	return nil
}

func (o OutputConfig) MarshalJSON() ([]byte, error) {
	type plain OutputConfig
	return json.Marshal(struct {
		plain
		PollRate duration `json:"pollRate,omitempty"`
	}{plain(o), duration(o.PollRate)})
}

func (o *OutputConfig) UnmarshalJSON(b []byte) error {
	type plain OutputConfig
	aux := struct {
		*plain
		PollRate duration `json:"pollRate,omitempty"`
	}{(*plain)(o), duration(o.PollRate)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	o.PollRate = time.Duration(aux.PollRate)
	return nil
}
