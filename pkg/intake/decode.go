package intake

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cuemby/fleetdrain/pkg/types"
)

// Decode parses one batch payload: a JSON array of instance records, or a
// single record object. An unparseable payload is an error. Elements that do
// not decode or validate are returned in rejected and never stop the rest of
// the batch.
func Decode(payload []byte) (records []types.InstanceRecord, rejected []error, err error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, nil, types.NewError(types.ErrorKindInvalid, "decode batch", fmt.Errorf("empty payload"))
	}

	var elems []json.RawMessage
	if trimmed[0] == '{' {
		elems = []json.RawMessage{trimmed}
	} else if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, nil, types.NewError(types.ErrorKindInvalid, "decode batch", err)
	}

	records = make([]types.InstanceRecord, 0, len(elems))
	for i, raw := range elems {
		var rec types.InstanceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			rejected = append(rejected, types.NewError(types.ErrorKindInvalid, fmt.Sprintf("decode record %d", i), err))
			continue
		}
		if err := rec.Validate(); err != nil {
			rejected = append(rejected, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}
	return records, rejected, nil
}

// Encode renders records as a batch payload
func Encode(records []types.InstanceRecord) ([]byte, error) {
	if records == nil {
		records = []types.InstanceRecord{}
	}
	return json.Marshal(records)
}
