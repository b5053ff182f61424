package ws

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Encoder converts downstream messages to wire format: plain JSON, or
// protobuf Struct compressed with zstd. Safe for concurrent use.
type Encoder struct {
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
}

// NewEncoder creates a new Encoder with Zstd compression.
func NewEncoder() (*Encoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Encoder{zstdEncoder: enc, zstdDecoder: dec}, nil
}

// EncodeJSON renders msg as a JSON text payload.
func (e *Encoder) EncodeJSON(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal json message: %w", err)
	}
	return data, nil
}

// EncodeProtobuf renders msg as a Zstd-compressed protobuf Struct.
func (e *Encoder) EncodeProtobuf(msg *Message) ([]byte, error) {
	// 1. Flatten to generic JSON values
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal json message: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal json message: %w", err)
	}

	// 2. Convert to protobuf Struct
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build protobuf struct: %w", err)
	}

	// 3. Serialize to protobuf bytes
	pbData, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal protobuf: %w", err)
	}

	// 4. Compress with Zstd
	return e.zstdEncoder.EncodeAll(pbData, nil), nil
}

// Encode renders msg for the given subprotocol.
func (e *Encoder) Encode(protocol string, msg *Message) ([]byte, error) {
	if protocol == ProtocolProtobuf {
		return e.EncodeProtobuf(msg)
	}
	return e.EncodeJSON(msg)
}

// DecodeProtobuf reverses EncodeProtobuf into generic JSON values.
func (e *Encoder) DecodeProtobuf(payload []byte) (map[string]any, error) {
	pbData, err := e.zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress zstd: %w", err)
	}

	var st structpb.Struct
	if err := proto.Unmarshal(pbData, &st); err != nil {
		return nil, fmt.Errorf("unmarshal protobuf: %w", err)
	}
	return st.AsMap(), nil
}

// Close releases encoder resources.
func (e *Encoder) Close() {
	if e.zstdEncoder != nil {
		e.zstdEncoder.Close()
	}
	if e.zstdDecoder != nil {
		e.zstdDecoder.Close()
	}
}
