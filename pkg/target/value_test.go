package target

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/wadbg/pkg/cdp"
	"github.com/hitzhangjie/wadbg/pkg/symbol"
)

// fakeRuntimeSession serves Runtime.getProperties from a canned table.
type fakeRuntimeSession struct {
	props map[string][]cdp.PropertyDescriptor
}

func (f *fakeRuntimeSession) Call(ctx context.Context, method string, params, result any) error {
	if method != "Runtime.getProperties" {
		return nil
	}
	raw, _ := json.Marshal(params)
	var p struct {
		ObjectID string `json:"objectId"`
	}
	json.Unmarshal(raw, &p)
	out := struct {
		Result []cdp.PropertyDescriptor `json:"result"`
	}{Result: f.props[p.ObjectID]}
	b, _ := json.Marshal(out)
	return json.Unmarshal(b, result)
}

func (f *fakeRuntimeSession) Subscribe(h func(method string, params json.RawMessage), events ...string) func() {
	return func() {}
}

func remoteNumber(v float64) *cdp.RemoteObject {
	return &cdp.RemoteObject{Type: "number", Value: v}
}

func TestBuildValueVectorDirectScalars(t *testing.T) {
	rt := cdp.Runtime{API: &fakeRuntimeSession{}}

	props := []cdp.PropertyDescriptor{
		{Name: "0", Value: remoteNumber(7)},
		{Name: "1", Value: &cdp.RemoteObject{Type: "bigint", UnserializableValue: "123n"}},
	}
	values, err := buildValueVector(context.Background(), rt, props)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, symbol.ValueI32(7), values[0])
	assert.Equal(t, symbol.ValueI64(123), values[1])
}

func TestBuildValueVectorTypedObjects(t *testing.T) {
	fake := &fakeRuntimeSession{props: map[string][]cdp.PropertyDescriptor{
		"obj-i32": {
			{Name: "type", Value: &cdp.RemoteObject{Type: "string", Value: "i32"}},
			{Name: "value", Value: remoteNumber(-5)},
		},
		"obj-i64": {
			{Name: "type", Value: &cdp.RemoteObject{Type: "string", Value: "i64"}},
			{Name: "value", Value: &cdp.RemoteObject{Type: "string", Value: "9007199254740993n"}},
		},
		"obj-f64": {
			{Name: "type", Value: &cdp.RemoteObject{Type: "string", Value: "f64"}},
			{Name: "value", Value: remoteNumber(2.5)},
		},
	}}
	rt := cdp.Runtime{API: fake}

	props := []cdp.PropertyDescriptor{
		{Name: "0", Value: &cdp.RemoteObject{Type: "object", ObjectID: "obj-i32"}},
		{Name: "1", Value: &cdp.RemoteObject{Type: "object", ObjectID: "obj-i64"}},
		{Name: "2", Value: &cdp.RemoteObject{Type: "object", ObjectID: "obj-f64"}},
	}
	values, err := buildValueVector(context.Background(), rt, props)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, symbol.ValueI32(-5), values[0])
	assert.Equal(t, symbol.ValueI64(9007199254740993), values[1])
	assert.Equal(t, symbol.ValueF64(2.5), values[2])
}

func TestParseBigIntLiteral(t *testing.T) {
	v, err := parseBigIntLiteral("42n")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = parseBigIntLiteral("", "-7n")
	require.NoError(t, err)
	assert.Equal(t, int64(-7), v)

	_, err = parseBigIntLiteral("not a number")
	assert.Error(t, err)

	_, err = parseBigIntLiteral()
	assert.Error(t, err)
}
