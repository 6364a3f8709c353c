package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownPayload is returned when signal data matches no negotiation shape.
var ErrUnknownPayload = errors.New("unknown signal payload")

// PayloadKind discriminates the negotiation payload variants.
type PayloadKind string

const (
	KindOffer     PayloadKind = "offer"
	KindAnswer    PayloadKind = "answer"
	KindCandidate PayloadKind = "candidate"
)

// SessionDescription mirrors RTCSessionDescriptionInit.
type SessionDescription struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// ICECandidate mirrors RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// Payload is the negotiation data relayed between peers. On the wire it
// carries both the kind tag and the legacy keyed body ({"offer": ...}), so
// browsers that only look at the body keep working.
type Payload struct {
	Kind      PayloadKind         `json:"kind,omitempty" msgpack:"kind,omitempty"`
	Offer     *SessionDescription `json:"offer,omitempty" msgpack:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty" msgpack:"answer,omitempty"`
	Candidate *ICECandidate       `json:"candidate,omitempty" msgpack:"candidate,omitempty"`

	// Extra holds top-level keys outside the known shapes. They are written
	// back out unchanged, so the relay never strips what a client added.
	Extra map[string]any `json:"-" msgpack:"-"`
}

// payloadFields has Payload's fields without its codec methods.
type payloadFields Payload

var payloadKeys = []string{"kind", "offer", "answer", "candidate"}

func NewOffer(sdp string) Payload {
	return Payload{Kind: KindOffer, Offer: &SessionDescription{Type: string(KindOffer), SDP: sdp}}
}

func NewAnswer(sdp string) Payload {
	return Payload{Kind: KindAnswer, Answer: &SessionDescription{Type: string(KindAnswer), SDP: sdp}}
}

func NewCandidate(c ICECandidate) Payload {
	return Payload{Kind: KindCandidate, Candidate: &c}
}

// Resolve fills in Kind for untagged payloads and checks that exactly the
// body named by Kind is present. Body contents are not judged here: an empty
// candidate is a valid end-of-candidates marker.
func (p *Payload) Resolve() error {
	present := 0
	var inferred PayloadKind
	if p.Offer != nil {
		present++
		inferred = KindOffer
	}
	if p.Answer != nil {
		present++
		inferred = KindAnswer
	}
	if p.Candidate != nil {
		present++
		inferred = KindCandidate
	}
	if present != 1 {
		return fmt.Errorf("%w: %d bodies present", ErrUnknownPayload, present)
	}

	switch p.Kind {
	case "":
		p.Kind = inferred
	case KindOffer, KindAnswer, KindCandidate:
		if p.Kind != inferred {
			return fmt.Errorf("%w: kind %q with %s body", ErrUnknownPayload, p.Kind, inferred)
		}
	default:
		return fmt.Errorf("%w: kind %q", ErrUnknownPayload, p.Kind)
	}

	return nil
}

// Description returns the offer or answer body, or nil for candidates.
func (p Payload) Description() *SessionDescription {
	switch {
	case p.Offer != nil:
		return p.Offer
	case p.Answer != nil:
		return p.Answer
	}
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(payloadFields(p))
	if err != nil || len(p.Extra) == 0 {
		return data, err
	}
	var merged map[string]any
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	mergeExtra(merged, p.Extra)
	return json.Marshal(merged)
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var fields payloadFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields.Extra = extraKeys(raw)
	*p = Payload(fields)
	return nil
}

func (p Payload) EncodeMsgpack(enc *msgpack.Encoder) error {
	if len(p.Extra) == 0 {
		return enc.Encode(payloadFields(p))
	}
	data, err := msgpack.Marshal(payloadFields(p))
	if err != nil {
		return err
	}
	var merged map[string]any
	if err := msgpack.Unmarshal(data, &merged); err != nil {
		return err
	}
	mergeExtra(merged, p.Extra)
	return enc.Encode(merged)
}

func (p *Payload) DecodeMsgpack(dec *msgpack.Decoder) error {
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	data, err := msgpack.Marshal(raw)
	if err != nil {
		return err
	}
	var fields payloadFields
	if err := msgpack.Unmarshal(data, &fields); err != nil {
		return err
	}
	fields.Extra = extraKeys(raw)
	*p = Payload(fields)
	return nil
}

// extraKeys strips the known keys from raw and returns what is left.
func extraKeys(raw map[string]any) map[string]any {
	for _, k := range payloadKeys {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func mergeExtra(dst, extra map[string]any) {
	for k, v := range extra {
		if _, taken := dst[k]; !taken {
			dst[k] = v
		}
	}
}
