package storkit

import "time"

// Options holds cross-provider construction knobs.
type Options struct {
	logger       Logger
	keyBuilder   *KeyBuilder
	clock        func() time.Time
	instrumenter *Instrumenter
}

// Option is a functional option applied at provider construction.
type Option func(*Options)

// WithLogger sets the logger used by providers and the manager.
func WithLogger(l Logger) Option {
	return func(o *Options) { o.logger = l }
}

// WithKeyBuilder sets a custom storage-key builder. Injecting a builder with
// a fixed clock and token source makes key generation deterministic under
// test.
func WithKeyBuilder(kb *KeyBuilder) Option {
	return func(o *Options) { o.keyBuilder = kb }
}

// WithClock sets a custom time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) { o.clock = clock }
}

// WithInstrumenter sets the OpenTelemetry instrumenter. Nil disables
// instrumentation.
func WithInstrumenter(i *Instrumenter) Option {
	return func(o *Options) { o.instrumenter = i }
}

// ResolveOptions applies opts over defaults.
func ResolveOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NewNopLogger()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.keyBuilder == nil {
		o.keyBuilder = NewKeyBuilderWith(o.clock, nil)
	}
	return o
}

// Logger returns the resolved logger.
func (o *Options) Logger() Logger { return o.logger }

// KeyBuilder returns the resolved key builder.
func (o *Options) KeyBuilder() *KeyBuilder { return o.keyBuilder }

// Clock returns the resolved time source.
func (o *Options) Clock() func() time.Time { return o.clock }

// Instrumenter returns the resolved instrumenter, possibly nil.
func (o *Options) Instrumenter() *Instrumenter { return o.instrumenter }
