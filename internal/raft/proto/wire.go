package proto

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// CodecName is the gRPC content-subtype under which the wire codec is registered.
const CodecName = "raftwire"

// ErrMalformed is returned when a buffer cannot be decoded into the requested message.
var ErrMalformed = errors.New("proto: malformed message")

// Message is implemented by every RPC message in this package.
type Message interface {
	// AppendWire appends the protobuf encoding of the message to b.
	AppendWire(b []byte) []byte
	// UnmarshalWire replaces the message contents with the decoding of b.
	UnmarshalWire(b []byte) error
}

// Marshal returns the protobuf encoding of m.
func Marshal(m Message) []byte {
	return m.AppendWire(nil)
}

// Codec adapts Message to gRPC's encoding.Codec.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("%w: cannot marshal %T", ErrMalformed, v)
	}
	return m.AppendWire(nil), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("%w: cannot unmarshal into %T", ErrMalformed, v)
	}
	return m.UnmarshalWire(data)
}

func (Codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(Codec{})
}

// ---- encoding helpers (proto3: zero values are omitted) ----

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendMessage(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.AppendWire(nil))
}

// ---- decoding helpers ----

// errSkipField tells decodeFields that the visitor does not know the field and it must be skipped.
var errSkipField = errors.New("skip field")

func decodeFields(b []byte, visit func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := visit(num, typ, b)
		if errors.Is(err, errSkipField) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			err = nil
		}
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func consumeVarint(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: field %d has wire type %d, want varint", ErrMalformed, num, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeUint64(num protowire.Number, typ protowire.Type, b []byte, dst *uint64) (int, error) {
	v, n, err := consumeVarint(num, typ, b)
	if err != nil {
		return 0, err
	}
	*dst = v
	return n, nil
}

func consumeSint64(num protowire.Number, typ protowire.Type, b []byte, dst *int64) (int, error) {
	v, n, err := consumeVarint(num, typ, b)
	if err != nil {
		return 0, err
	}
	*dst = protowire.DecodeZigZag(v)
	return n, nil
}

func consumeBool(num protowire.Number, typ protowire.Type, b []byte, dst *bool) (int, error) {
	v, n, err := consumeVarint(num, typ, b)
	if err != nil {
		return 0, err
	}
	*dst = protowire.DecodeBool(v)
	return n, nil
}

func consumeMessage(num protowire.Number, typ protowire.Type, b []byte, m Message) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("%w: field %d has wire type %d, want bytes", ErrMalformed, num, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
	}
	if err := m.UnmarshalWire(v); err != nil {
		return 0, err
	}
	return n, nil
}

// ---- per-message encoding ----

func (x *LogEntry) AppendWire(b []byte) []byte {
	b = appendUint64(b, 1, x.Index)
	b = appendUint64(b, 2, x.Term)
	return appendSint64(b, 3, x.Command)
}

func (x *LogEntry) UnmarshalWire(b []byte) error {
	*x = LogEntry{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint64(num, typ, b, &x.Index)
		case 2:
			return consumeUint64(num, typ, b, &x.Term)
		case 3:
			return consumeSint64(num, typ, b, &x.Command)
		}
		return 0, errSkipField
	})
}

func (x *RequestVoteRequest) AppendWire(b []byte) []byte {
	b = appendUint64(b, 1, x.Term)
	b = appendUint64(b, 2, x.CandidateId)
	b = appendUint64(b, 3, x.LastLogIndex)
	return appendUint64(b, 4, x.LastLogTerm)
}

func (x *RequestVoteRequest) UnmarshalWire(b []byte) error {
	*x = RequestVoteRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint64(num, typ, b, &x.Term)
		case 2:
			return consumeUint64(num, typ, b, &x.CandidateId)
		case 3:
			return consumeUint64(num, typ, b, &x.LastLogIndex)
		case 4:
			return consumeUint64(num, typ, b, &x.LastLogTerm)
		}
		return 0, errSkipField
	})
}

func (x *RequestVoteResponse) AppendWire(b []byte) []byte {
	b = appendUint64(b, 1, x.Term)
	return appendBool(b, 2, x.VoteGranted)
}

func (x *RequestVoteResponse) UnmarshalWire(b []byte) error {
	*x = RequestVoteResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint64(num, typ, b, &x.Term)
		case 2:
			return consumeBool(num, typ, b, &x.VoteGranted)
		}
		return 0, errSkipField
	})
}

func (x *AppendEntriesRequest) AppendWire(b []byte) []byte {
	b = appendUint64(b, 1, x.Term)
	b = appendUint64(b, 2, x.LeaderId)
	b = appendUint64(b, 3, x.PrevLogIndex)
	b = appendUint64(b, 4, x.PrevLogTerm)
	for _, entry := range x.Entries {
		b = appendMessage(b, 5, entry)
	}
	return appendUint64(b, 6, x.LeaderCommit)
}

func (x *AppendEntriesRequest) UnmarshalWire(b []byte) error {
	*x = AppendEntriesRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint64(num, typ, b, &x.Term)
		case 2:
			return consumeUint64(num, typ, b, &x.LeaderId)
		case 3:
			return consumeUint64(num, typ, b, &x.PrevLogIndex)
		case 4:
			return consumeUint64(num, typ, b, &x.PrevLogTerm)
		case 5:
			entry := &LogEntry{}
			n, err := consumeMessage(num, typ, b, entry)
			if err != nil {
				return 0, err
			}
			x.Entries = append(x.Entries, entry)
			return n, nil
		case 6:
			return consumeUint64(num, typ, b, &x.LeaderCommit)
		}
		return 0, errSkipField
	})
}

func (x *AppendEntriesResponse) AppendWire(b []byte) []byte {
	b = appendUint64(b, 1, x.Term)
	b = appendBool(b, 2, x.Success)
	return appendUint64(b, 3, x.AckLength)
}

func (x *AppendEntriesResponse) UnmarshalWire(b []byte) error {
	*x = AppendEntriesResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint64(num, typ, b, &x.Term)
		case 2:
			return consumeBool(num, typ, b, &x.Success)
		case 3:
			return consumeUint64(num, typ, b, &x.AckLength)
		}
		return 0, errSkipField
	})
}

func (x *GetCommittedCmdRequest) AppendWire(b []byte) []byte {
	return appendUint64(b, 1, x.Index)
}

func (x *GetCommittedCmdRequest) UnmarshalWire(b []byte) error {
	*x = GetCommittedCmdRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeUint64(num, typ, b, &x.Index)
		}
		return 0, errSkipField
	})
}

func (x *GetCommittedCmdResponse) AppendWire(b []byte) []byte {
	return appendSint64(b, 1, x.Command)
}

func (x *GetCommittedCmdResponse) UnmarshalWire(b []byte) error {
	*x = GetCommittedCmdResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeSint64(num, typ, b, &x.Command)
		}
		return 0, errSkipField
	})
}

func (x *GetStatusRequest) AppendWire(b []byte) []byte {
	return b
}

func (x *GetStatusRequest) UnmarshalWire(b []byte) error {
	return decodeFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) {
		return 0, errSkipField
	})
}

func (x *NewCommandRequest) AppendWire(b []byte) []byte {
	return appendSint64(b, 1, x.Command)
}

func (x *NewCommandRequest) UnmarshalWire(b []byte) error {
	*x = NewCommandRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeSint64(num, typ, b, &x.Command)
		}
		return 0, errSkipField
	})
}

func (x *StatusReport) AppendWire(b []byte) []byte {
	b = appendUint64(b, 1, x.LastLogIndex)
	b = appendUint64(b, 2, x.Term)
	b = appendBool(b, 3, x.IsLeader)
	return appendUint64(b, 4, x.CallCount)
}

func (x *StatusReport) UnmarshalWire(b []byte) error {
	*x = StatusReport{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint64(num, typ, b, &x.LastLogIndex)
		case 2:
			return consumeUint64(num, typ, b, &x.Term)
		case 3:
			return consumeBool(num, typ, b, &x.IsLeader)
		case 4:
			return consumeUint64(num, typ, b, &x.CallCount)
		}
		return 0, errSkipField
	})
}
