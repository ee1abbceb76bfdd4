package ime

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type export struct {
	v     any
	path  dbus.ObjectPath
	iface string
}

type fakeExporter struct {
	exports []export
	err     error
}

func (f *fakeExporter) Export(v any, path dbus.ObjectPath, iface string) error {
	if f.err != nil {
		return f.err
	}
	f.exports = append(f.exports, export{v: v, path: path, iface: iface})
	return nil
}

func newTestFactory(exp *fakeExporter) *Factory {
	em := &fakeEmitter{}
	return NewFactory(exp, "kboverlay", func(path dbus.ObjectPath) *Engine {
		return NewEngine(path, em, inlineExec{}, &manualClock{})
	}, nil)
}

func TestFactory_CreateEngine(t *testing.T) {
	exp := &fakeExporter{}
	f := newTestFactory(exp)

	p1, derr := f.CreateEngine("kboverlay")
	require.Nil(t, derr)
	p2, derr := f.CreateEngine("kboverlay")
	require.Nil(t, derr)

	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/IBus/Engine/1"), p1)
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/IBus/Engine/2"), p2)
	require.Len(t, exp.exports, 2)
	assert.Equal(t, IBusEngineInterface, exp.exports[0].iface)

	engines := f.Engines()
	require.Len(t, engines, 2)
	assert.Equal(t, p1, engines[0].Path())
	assert.Same(t, engines[0], exp.exports[0].v)
}

func TestFactory_UnknownEngine(t *testing.T) {
	exp := &fakeExporter{}
	f := newTestFactory(exp)

	path, derr := f.CreateEngine("pinyin")
	require.NotNil(t, derr)
	assert.Equal(t, "org.freedesktop.IBus.NoEngine", derr.Name)
	assert.Empty(t, path)
	assert.Empty(t, exp.exports)
}

func TestFactory_ExportFailure(t *testing.T) {
	exp := &fakeExporter{err: errors.New("bus gone")}
	f := newTestFactory(exp)

	_, derr := f.CreateEngine("kboverlay")
	require.NotNil(t, derr)
	assert.Empty(t, f.Engines())
}

func TestFactory_DestroyUnexports(t *testing.T) {
	exp := &fakeExporter{}
	f := newTestFactory(exp)
	path, _ := f.CreateEngine("kboverlay")
	e := f.Engines()[0]

	require.Nil(t, e.Destroy())
	assert.Empty(t, f.Engines())
	require.Len(t, exp.exports, 2)
	assert.Nil(t, exp.exports[1].v)
	assert.Equal(t, path, exp.exports[1].path)

	require.Nil(t, e.Destroy())
	assert.Len(t, exp.exports, 2, "second destroy is a no-op")
}
