package aggregate

import (
	"encoding/json"
	"math"
)

// jsonFloat encodes the values plain JSON numbers cannot hold: NaN as null
// and infinities as the strings "+Inf" and "-Inf".
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte("null"), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null":
		*f = jsonFloat(math.NaN())
		return nil
	case `"+Inf"`:
		*f = jsonFloat(math.Inf(1))
		return nil
	case `"-Inf"`:
		*f = jsonFloat(math.Inf(-1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

type jsonFloats []float64

func (fs jsonFloats) MarshalJSON() ([]byte, error) {
	if fs == nil {
		return []byte("null"), nil
	}
	out := make([]jsonFloat, len(fs))
	for i, v := range fs {
		out[i] = jsonFloat(v)
	}
	return json.Marshal(out)
}

func (fs *jsonFloats) UnmarshalJSON(data []byte) error {
	var in []jsonFloat
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in == nil {
		*fs = nil
		return nil
	}
	out := make(jsonFloats, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	*fs = out
	return nil
}

// MarshalJSON keeps timeouts recorded as +Inf.
func (f FinalSummary) MarshalJSON() ([]byte, error) {
	type plain FinalSummary
	return json.Marshal(struct {
		plain
		Median jsonFloat  `json:"median"`
		Q25    jsonFloat  `json:"q25"`
		Q75    jsonFloat  `json:"q75"`
		Values jsonFloats `json:"values"`
		PValue *jsonFloat `json:"p_value,omitempty"`
	}{
		plain:  plain(f),
		Median: jsonFloat(f.Median),
		Q25:    jsonFloat(f.Q25),
		Q75:    jsonFloat(f.Q75),
		Values: jsonFloats(f.Values),
		PValue: (*jsonFloat)(f.PValue),
	})
}

func (f *FinalSummary) UnmarshalJSON(data []byte) error {
	type plain FinalSummary
	aux := struct {
		*plain
		Median jsonFloat  `json:"median"`
		Q25    jsonFloat  `json:"q25"`
		Q75    jsonFloat  `json:"q75"`
		Values jsonFloats `json:"values"`
		PValue *jsonFloat `json:"p_value,omitempty"`
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.Median, f.Q25, f.Q75 = float64(aux.Median), float64(aux.Q25), float64(aux.Q75)
	f.Values = []float64(aux.Values)
	f.PValue = (*float64)(aux.PValue)
	return nil
}

// MarshalJSON keeps non-finite statistics, see FinalSummary.MarshalJSON.
func (s ConfiguratorStats) MarshalJSON() ([]byte, error) {
	type plain ConfiguratorStats
	return json.Marshal(struct {
		plain
		Medians             jsonFloats `json:"medians,omitempty"`
		Q25                 jsonFloats `json:"q25,omitempty"`
		Q75                 jsonFloats `json:"q75,omitempty"`
		PValues             jsonFloats `json:"p_values,omitempty"`
		AUC                 *jsonFloat `json:"auc,omitempty"`
		Speedup             *jsonFloat `json:"speedup,omitempty"`
		SignificanceSpeedup *jsonFloat `json:"significance_speedup,omitempty"`
	}{
		plain:               plain(s),
		Medians:             jsonFloats(s.Medians),
		Q25:                 jsonFloats(s.Q25),
		Q75:                 jsonFloats(s.Q75),
		PValues:             jsonFloats(s.PValues),
		AUC:                 (*jsonFloat)(s.AUC),
		Speedup:             (*jsonFloat)(s.Speedup),
		SignificanceSpeedup: (*jsonFloat)(s.SignificanceSpeedup),
	})
}

func (s *ConfiguratorStats) UnmarshalJSON(data []byte) error {
	type plain ConfiguratorStats
	aux := struct {
		*plain
		Medians             jsonFloats `json:"medians,omitempty"`
		Q25                 jsonFloats `json:"q25,omitempty"`
		Q75                 jsonFloats `json:"q75,omitempty"`
		PValues             jsonFloats `json:"p_values,omitempty"`
		AUC                 *jsonFloat `json:"auc,omitempty"`
		Speedup             *jsonFloat `json:"speedup,omitempty"`
		SignificanceSpeedup *jsonFloat `json:"significance_speedup,omitempty"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Medians, s.Q25, s.Q75 = []float64(aux.Medians), []float64(aux.Q25), []float64(aux.Q75)
	s.PValues = []float64(aux.PValues)
	s.AUC = (*float64)(aux.AUC)
	s.Speedup = (*float64)(aux.Speedup)
	s.SignificanceSpeedup = (*float64)(aux.SignificanceSpeedup)
	return nil
}

// MarshalJSON keeps a default configuration that timed out.
func (c ScenarioComparison) MarshalJSON() ([]byte, error) {
	type plain ScenarioComparison
	return json.Marshal(struct {
		plain
		Default *jsonFloat `json:"default,omitempty"`
		Times   jsonFloats `json:"times"`
	}{
		plain:   plain(c),
		Default: (*jsonFloat)(c.Default),
		Times:   jsonFloats(c.Times),
	})
}

func (c *ScenarioComparison) UnmarshalJSON(data []byte) error {
	type plain ScenarioComparison
	aux := struct {
		*plain
		Default *jsonFloat `json:"default,omitempty"`
		Times   jsonFloats `json:"times"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Default = (*float64)(aux.Default)
	c.Times = []float64(aux.Times)
	return nil
}
