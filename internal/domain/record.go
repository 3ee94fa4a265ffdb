package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Record is one element of an opportunity batch as received from the ingestion layer.
// When Err is set the element could not be decoded and Opportunity carries only the
// id, if one could be recovered.
type Record struct {
	Opportunity Opportunity
	Err         error
}

// RecordsOf wraps already decoded opportunities
func RecordsOf(opps []Opportunity) []Record {
	records := make([]Record, len(opps))
	for i, opp := range opps {
		records[i] = Record{Opportunity: opp}
	}
	return records
}

// DecodeRecords decodes a JSON array of opportunities element by element, so a
// malformed element becomes a per-record ValidationError instead of failing the
// whole payload. A single JSON object is accepted as a batch of one.
func DecodeRecords(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid JSON")
	}

	switch data[0] {
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, err
		}
		return DecodeRawRecords(raws), nil
	case '{':
		return []Record{DecodeRecord(data)}, nil
	default:
		return nil, errors.New("expected a JSON array or object of opportunities")
	}
}

// DecodeRawRecords decodes each raw element independently
func DecodeRawRecords(raws []json.RawMessage) []Record {
	records := make([]Record, len(raws))
	for i, raw := range raws {
		records[i] = DecodeRecord(raw)
	}
	return records
}

// DecodeRecord decodes a single opportunity. Failures are reported as a ValidationError
// naming the offending field.
func DecodeRecord(raw json.RawMessage) Record {
	var opp Opportunity
	err := json.Unmarshal(raw, &opp)
	if err == nil {
		return Record{Opportunity: opp}
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return Record{Err: &ValidationError{Field: "record", Reason: "is not a JSON object"}}
	}

	var id string
	if v, ok := fields["id"]; ok {
		_ = json.Unmarshal(v, &id)
	}

	return Record{
		Opportunity: Opportunity{ID: id},
		Err: &ValidationError{
			OpportunityID: id,
			Field:         malformedField(fields),
			Reason:        fmt.Sprintf("is malformed (%v)", err),
		},
	}
}

// malformedField finds the first key, in sorted order, that fails to decode on its own
func malformedField(fields map[string]json.RawMessage) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		single, err := json.Marshal(map[string]json.RawMessage{k: fields[k]})
		if err != nil {
			return k
		}
		var candidate Opportunity
		if json.Unmarshal(single, &candidate) != nil {
			return k
		}
	}
	return "record"
}
