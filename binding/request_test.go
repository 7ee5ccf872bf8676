package binding

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/delaneyj/bindparty/errs"
	"github.com/delaneyj/bindparty/observe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMode(t *testing.T) {
	t.Run("parse", func(t *testing.T) {
		cases := map[string]Mode{
			"one-way":           OneWay,
			"TwoWay":            TwoWay,
			"ONE_WAY_TO_SOURCE": OneWayToSource,
			" one-time ":        OneTime,
			"none":              None,
		}
		for in, want := range cases {
			got, err := ParseMode(in)
			require.NoError(t, err, in)
			assert.Equal(t, want, got, in)
		}
		_, err := ParseMode("sideways")
		assert.Error(t, err)
	})

	t.Run("text round trip", func(t *testing.T) {
		var doc struct {
			Mode Mode `yaml:"mode"`
		}
		require.NoError(t, yaml.Unmarshal([]byte("mode: two-way\n"), &doc))
		assert.Equal(t, TwoWay, doc.Mode)

		out, err := yaml.Marshal(doc)
		require.NoError(t, err)
		assert.Equal(t, "mode: two-way\n", string(out))

		_, err = Mode(42).MarshalText()
		assert.Error(t, err)
		assert.Equal(t, "Mode(42)", Mode(42).String())
		assert.Equal(t, "idle", Idle.String())
	})
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := DefaultConfig()
		assert.Equal(t, "one-way", c.DefaultMode)
		assert.Zero(t, c.Delay)
		assert.Equal(t, "info", c.LogLevel)
		assert.NoError(t, c.Validate())

		empty, err := ReadConfig(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, c, empty)
	})

	t.Run("load from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bindings.yaml")
		require.NoError(t, os.WriteFile(path, []byte("default_mode: two-way\ndelay: 150ms\nlog_level: debug\n"), 0o600))

		c, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, TwoWay, c.mode())
		assert.Equal(t, 150*time.Millisecond, c.Delay)
		assert.Zero(t, c.TargetDelay)
		assert.Equal(t, "DEBUG", c.Level().String())
	})

	t.Run("invalid values", func(t *testing.T) {
		for _, doc := range []string{
			"default_mode: sideways\n",
			"log_level: loud\n",
			"delay: -1s\n",
			"delay: [\n",
		} {
			_, err := ReadConfig(strings.NewReader(doc))
			assert.True(t, errs.IsCode(err, errs.CodeConfiguration), doc)
		}

		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.True(t, errs.IsCode(err, errs.CodeConfiguration))
	})

	t.Run("manager applies defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DefaultMode = "two-way"
		m := NewManager(WithObservers(observe.NewObservers()), WithConfig(cfg))

		bld, err := m.Compile(Request{Target: Path("Text"), Source: Path("Name")})
		require.NoError(t, err)
		assert.Equal(t, TwoWay, bld.Mode())

		bld, err = m.Compile(Request{
			Target: Path("Text"),
			Source: Path("Name"),
			Params: []Param{{Name: ParamMode, Value: "one-time"}},
		})
		require.NoError(t, err)
		assert.Equal(t, OneTime, bld.Mode())
	})
}

func TestCompile(t *testing.T) {
	m := NewManager(WithObservers(observe.NewObservers()))

	t.Run("rejects bad requests", func(t *testing.T) {
		cases := map[string]Request{
			"nil target":        {Source: Path("Name")},
			"constant target":   {Target: Constant{Value: 1}, Source: Path("Name")},
			"empty target path": {Target: Path(""), Source: Path("Name")},
			"bad source path":   {Target: Path("Text"), Source: Path("Friend..Name")},
			"nil source":        {Target: Path("Text")},
			"unknown parameter": {Target: Path("Text"), Source: Path("Name"), Params: []Param{{Name: "Colour", Value: 1}}},
			"duplicate parameter": {Target: Path("Text"), Source: Path("Name"), Params: []Param{
				{Name: ParamMode, Value: OneWay},
				{Name: ParamMode, Value: TwoWay},
			}},
			"bad mode":         {Target: Path("Text"), Source: Path("Name"), Params: []Param{{Name: ParamMode, Value: "sideways"}}},
			"invalid mode":     {Target: Path("Text"), Source: Path("Name"), Params: []Param{{Name: ParamMode, Value: Mode(99)}}},
			"negative delay":   {Target: Path("Text"), Source: Path("Name"), Params: []Param{{Name: ParamDelay, Value: -time.Second}}},
			"bad delay":        {Target: Path("Text"), Source: Path("Name"), Params: []Param{{Name: ParamTargetDelay, Value: "soon"}}},
			"bad bool":         {Target: Path("Text"), Source: Path("Name"), Params: []Param{{Name: ParamOptional, Value: "yes"}}},
			"bad flags":        {Target: Path("Text"), Source: Path("Name"), Params: []Param{{Name: ParamFlags, Value: "bogus"}}},
			"bad converter":    {Target: Path("Text"), Source: Path("Name"), Params: []Param{{Name: ParamConverter, Value: 3}}},
			"two way constant": {Target: Path("Text"), Source: Constant{Value: 1}, Params: []Param{{Name: ParamMode, Value: TwoWay}}},
		}
		for name, req := range cases {
			_, err := m.Compile(req)
			require.Error(t, err, name)
			assert.True(t, errs.IsCode(err, errs.CodeConfiguration), name)
		}
	})

	t.Run("accepts every parameter form", func(t *testing.T) {
		bld, err := m.Compile(Request{
			Target: Path("Text"),
			Source: Path("Friend.Name"),
			Params: []Param{
				{Name: ParamMode, Value: "TwoWay"},
				{Name: ParamDelay, Value: "10ms"},
				{Name: ParamTargetDelay, Value: 5},
				{Name: ParamOptional, Value: true},
				{Name: ParamStablePath, Value: false},
				{Name: ParamObservable, Value: true},
				{Name: ParamObservableMethod, Value: "OnNameChanged"},
				{Name: ParamFlags, Value: "fields|methods"},
				{Name: ParamFallback, Value: "?"},
				{Name: ParamTargetNullValue, Value: ""},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, TwoWay, bld.Mode())
		assert.Equal(t, 10*time.Millisecond, bld.s.delay)
		assert.Equal(t, 5*time.Millisecond, bld.s.targetDelay)
		assert.True(t, bld.s.hasFallback)
		assert.True(t, bld.s.hasTargetNullValue)

		src, ok := bld.source.(*Member)
		require.True(t, ok)
		opts := observe.NewOptions(src.Options...)
		assert.True(t, opts.Optional)
		assert.Equal(t, "OnNameChanged", opts.ObservableMethod)
	})

	t.Run("build rejects a nil target", func(t *testing.T) {
		bld, err := m.Compile(Request{
			Target: Path("Text"),
			Source: Path("Name"),
			Params: []Param{{Name: ParamMode, Value: TwoWay}},
		})
		require.NoError(t, err)

		_, err = bld.Build(context.Background(), nil, &person{})
		assert.True(t, errs.IsCode(err, errs.CodeConfiguration))
	})

	t.Run("one builder serves many targets", func(t *testing.T) {
		bld, err := m.Compile(Request{Target: Path("Text"), Source: Path("Name")})
		require.NoError(t, err)

		p := &person{name: "shared"}
		a, b := &textBox{}, &textBox{}
		ba, err := bld.Build(context.Background(), a, p)
		require.NoError(t, err)
		bb, err := bld.Build(context.Background(), b, p)
		require.NoError(t, err)
		assert.NotEqual(t, ba.ID(), bb.ID())

		p.SetName("both")
		assert.Equal(t, "both", a.Text())
		assert.Equal(t, "both", b.Text())
	})
}
