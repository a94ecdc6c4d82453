// Package payload encodes application values carried on data connections.
package payload

import (
	"fmt"
	"reflect"

	"github.com/ugorji/go/codec"
)

const (
	JSON    = "json"
	Msgpack = "msgpack"
	CBOR    = "cbor"
)

var mapType = reflect.TypeOf(map[string]interface{}(nil))

// Codec is a named ugorji handle. Generic maps decode as map[string]any.
type Codec struct {
	name string
	h    codec.Handle
}

func New(name string) (*Codec, error) {
	var h codec.Handle
	switch name {
	case JSON, "":
		jh := &codec.JsonHandle{}
		jh.MapType = mapType
		h, name = jh, JSON
	case Msgpack:
		mh := &codec.MsgpackHandle{WriteExt: true}
		mh.MapType = mapType
		mh.RawToString = true
		h = mh
	case CBOR:
		ch := &codec.CborHandle{}
		ch.MapType = mapType
		h = ch
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	return &Codec{name: name, h: h}, nil
}

func (c *Codec) Name() string { return c.name }

func (c *Codec) Encode(v interface{}) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, c.h).Encode(v); err != nil {
		return nil, fmt.Errorf("%s encode: %w", c.name, err)
	}
	return b, nil
}

func (c *Codec) Decode(b []byte, v interface{}) error {
	if err := codec.NewDecoderBytes(b, c.h).Decode(v); err != nil {
		return fmt.Errorf("%s decode: %w", c.name, err)
	}
	return nil
}
