package coverage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signalsfoundry/radio-towers/core"
	"google.golang.org/protobuf/types/known/structpb"
)

// SolveRequest is the decoded form of a Solve RPC payload. Exactly one of
// Input (the text format) or Instance is set.
type SolveRequest struct {
	Input    string
	Instance *core.Instance
	TieBreak string
}

// solveRequestJSON is the JSON view of the request Struct. The instance form
// keeps the three fields raw so core.LoadInstanceJSON owns their decoding.
type solveRequestJSON struct {
	Input        *string         `json:"input,omitempty"`
	Island       json.RawMessage `json:"island,omitempty"`
	Transmitters json.RawMessage `json:"transmitters,omitempty"`
	Receivers    json.RawMessage `json:"receivers,omitempty"`
	TieBreak     string          `json:"tie_break,omitempty"`
}

func (j *solveRequestJSON) hasInstance() bool {
	return len(j.Island) > 0 || len(j.Transmitters) > 0 || len(j.Receivers) > 0
}

// EncodeSolveRequest converts req into the Struct sent over the wire.
func EncodeSolveRequest(req *SolveRequest) (*structpb.Struct, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", ErrInvalidRequest)
	}
	if (req.Input == "") == (req.Instance == nil) {
		return nil, fmt.Errorf("%w: exactly one of input or instance must be set", ErrInvalidRequest)
	}

	payload := solveRequestJSON{TieBreak: req.TieBreak}
	if req.Instance != nil {
		var err error
		if payload.Island, err = json.Marshal(req.Instance.Island); err != nil {
			return nil, err
		}
		if payload.Transmitters, err = json.Marshal(req.Instance.Transmitters); err != nil {
			return nil, err
		}
		if payload.Receivers, err = json.Marshal(req.Instance.Receivers); err != nil {
			return nil, err
		}
	} else {
		input := req.Input
		payload.Input = &input
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode solve request: %w", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("encode solve request: %w", err)
	}
	return out, nil
}

// DecodeSolveRequest parses and validates a request Struct. The instance is
// always loaded, whichever form carried it, and the tie-break name is checked.
func DecodeSolveRequest(in *structpb.Struct) (*SolveRequest, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: request is nil", ErrInvalidRequest)
	}
	raw, err := in.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var payload solveRequestJSON
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	hasInput := payload.Input != nil
	if hasInput == payload.hasInstance() {
		return nil, fmt.Errorf("%w: exactly one of input or island/transmitters/receivers must be set", ErrInvalidRequest)
	}
	if _, err := core.ParseTieBreak(payload.TieBreak); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	req := &SolveRequest{TieBreak: payload.TieBreak}
	if hasInput {
		req.Input = *payload.Input
		req.Instance, err = core.LoadInstance(strings.NewReader(req.Input))
	} else {
		req.Instance, err = decodeInstance(payload)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func decodeInstance(payload solveRequestJSON) (*core.Instance, error) {
	fields := map[string]json.RawMessage{}
	if len(payload.Island) > 0 {
		fields["island"] = payload.Island
	}
	if len(payload.Transmitters) > 0 {
		fields["transmitters"] = payload.Transmitters
	}
	if len(payload.Receivers) > 0 {
		fields["receivers"] = payload.Receivers
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return core.LoadInstanceJSON(bytes.NewReader(raw))
}

// EncodeSolution converts a solution into the response Struct.
func EncodeSolution(sol *core.Solution) (*structpb.Struct, error) {
	if sol == nil {
		return nil, fmt.Errorf("encode solution: solution is nil")
	}
	raw, err := json.Marshal(sol)
	if err != nil {
		return nil, fmt.Errorf("encode solution: %w", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("encode solution: %w", err)
	}
	return out, nil
}

// DecodeSolution converts a response Struct back into a solution.
func DecodeSolution(in *structpb.Struct) (*core.Solution, error) {
	if in == nil {
		return nil, fmt.Errorf("decode solution: response is nil")
	}
	raw, err := in.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("decode solution: %w", err)
	}
	var sol core.Solution
	if err := json.Unmarshal(raw, &sol); err != nil {
		return nil, fmt.Errorf("decode solution: %w", err)
	}
	return &sol, nil
}
