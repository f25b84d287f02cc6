package rollup

import (
	"encoding/json"
	"fmt"
)

// Status is the verdict reported for the previous request on the next finish call.
type Status string

const (
	StatusAccept Status = "accept"
	StatusReject Status = "reject"
)

const (
	RequestTypeAdvance = "advance_state"
	RequestTypeInspect = "inspect_state"
)

// Request is a pending rollup request returned by the finish endpoint.
type Request struct {
	RequestType string          `json:"request_type"`
	Data        json.RawMessage `json:"data"`
}

type Metadata struct {
	MsgSender   string `json:"msg_sender"`
	EpochIndex  uint64 `json:"epoch_index"`
	InputIndex  uint64 `json:"input_index"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
}

// AdvanceData is the body of a state-changing input.
type AdvanceData struct {
	Metadata Metadata `json:"metadata"`
	Payload  string   `json:"payload"`
}

// InspectData is the body of a read-only query.
type InspectData struct {
	Payload string `json:"payload"`
}

func (r *Request) Advance() (AdvanceData, error) {
	var data AdvanceData
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return AdvanceData{}, fmt.Errorf("advance data: %w", err)
	}
	return data, nil
}

func (r *Request) Inspect() (InspectData, error) {
	var data InspectData
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return InspectData{}, fmt.Errorf("inspect data: %w", err)
	}
	return data, nil
}

type finishRequest struct {
	Status Status `json:"status"`
}

type outputRequest struct {
	Payload string `json:"payload"`
}
