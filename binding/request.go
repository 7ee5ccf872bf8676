package binding

import (
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/bindparty/errs"
	"github.com/delaneyj/bindparty/observe"
)

// Parameter names understood by Compile.
const (
	ParamMode             = "Mode"
	ParamDelay            = "Delay"
	ParamTargetDelay      = "TargetDelay"
	ParamOptional         = "Optional"
	ParamStablePath       = "StablePath"
	ParamObservable       = "Observable"
	ParamObservableMethod = "ObservableMethod"
	ParamFlags            = "Flags"
	ParamConverter        = "Converter"
	ParamFallback         = "Fallback"
	ParamTargetNullValue  = "TargetNullValue"
)

var knownParams = mapset.NewSet(
	ParamMode,
	ParamDelay,
	ParamTargetDelay,
	ParamOptional,
	ParamStablePath,
	ParamObservable,
	ParamObservableMethod,
	ParamFlags,
	ParamConverter,
	ParamFallback,
	ParamTargetNullValue,
)

// Param is a named binding parameter.
type Param struct {
	Name  string
	Value any
}

// Request describes a binding before it is compiled.
type Request struct {
	Target Expression
	Source Expression
	Params []Param

	Interceptors  []Interceptor
	TargetSetters []TargetSetter
	SourceSetters []SourceSetter
}

func configErr(format string, args ...any) error {
	return errs.Newf(errs.CodeConfiguration, format, args...)
}

func parseParams(params []Param, cfg Config) (settings, []observe.Option, error) {
	s := settings{
		mode:        cfg.mode(),
		delay:       cfg.Delay,
		targetDelay: cfg.TargetDelay,
		strict:      cfg.StrictLifecycle,
	}
	var opts []observe.Option

	seen := mapset.NewThreadUnsafeSet[string]()
	for _, p := range params {
		if !knownParams.Contains(p.Name) {
			return s, nil, configErr("unknown parameter %q", p.Name)
		}
		if !seen.Add(p.Name) {
			return s, nil, configErr("duplicate parameter %q", p.Name)
		}

		var err error
		switch p.Name {
		case ParamMode:
			s.mode, err = modeValue(p.Value)
		case ParamDelay:
			s.delay, err = durationValue(p.Value)
		case ParamTargetDelay:
			s.targetDelay, err = durationValue(p.Value)
		case ParamOptional:
			var v bool
			v, err = boolValue(p.Value)
			opts = append(opts, observe.WithOptional(v))
		case ParamStablePath:
			var v bool
			v, err = boolValue(p.Value)
			opts = append(opts, observe.WithStablePath(v))
		case ParamObservable:
			var v bool
			v, err = boolValue(p.Value)
			opts = append(opts, observe.WithObservable(v))
		case ParamObservableMethod:
			name, ok := p.Value.(string)
			if !ok {
				err = fmt.Errorf("want string, got %T", p.Value)
			}
			opts = append(opts, observe.WithObservableMethod(name))
		case ParamFlags:
			var f observe.MemberFlags
			f, err = flagsValue(p.Value)
			opts = append(opts, observe.WithFlags(f))
		case ParamConverter:
			c, ok := p.Value.(Converter)
			if !ok {
				err = fmt.Errorf("want Converter, got %T", p.Value)
			}
			s.converter = c
		case ParamFallback:
			s.fallback, s.hasFallback = p.Value, true
		case ParamTargetNullValue:
			s.targetNullValue, s.hasTargetNullValue = p.Value, true
		}
		if err != nil {
			return s, nil, errs.Wrapf(errs.CodeConfiguration, "binding.Compile", err, "parameter %q", p.Name)
		}
	}
	return s, opts, nil
}

func modeValue(v any) (Mode, error) {
	switch m := v.(type) {
	case Mode:
		if !m.IsValid() {
			return 0, fmt.Errorf("invalid mode %d", m)
		}
		return m, nil
	case string:
		return ParseMode(m)
	}
	return 0, fmt.Errorf("want Mode, got %T", v)
}

func durationValue(v any) (time.Duration, error) {
	var d time.Duration
	switch x := v.(type) {
	case time.Duration:
		d = x
	case string:
		var err error
		if d, err = time.ParseDuration(x); err != nil {
			return 0, err
		}
	case int:
		d = time.Duration(x) * time.Millisecond
	default:
		return 0, fmt.Errorf("want duration, got %T", v)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative delay %s", d)
	}
	return d, nil
}

func boolValue(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("want bool, got %T", v)
	}
	return b, nil
}

func flagsValue(v any) (observe.MemberFlags, error) {
	switch f := v.(type) {
	case observe.MemberFlags:
		return f, nil
	case string:
		if flags, ok := observe.ParseFlags(f); ok {
			return flags, nil
		}
		return 0, fmt.Errorf("invalid member flags %q", f)
	}
	return 0, fmt.Errorf("want MemberFlags, got %T", v)
}
