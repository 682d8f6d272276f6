package butterfly

import (
	"github.com/ButterflyStats/butterfly/internal/frame"
)

// DecoderOption is a configuration setting for Open.
type DecoderOption struct{ apply func(*config) }

type config struct {
	observer      Observer
	decompressor  frame.Decompressor
	resourceData  []byte
	requireAtOpen []int32
}

// WithObserver attaches the Observer that receives every state/tick/
// packet/entity/event/progress callback. The default is NoopObserver.
func WithObserver(o Observer) DecoderOption {
	return DecoderOption{func(c *config) { c.observer = o }}
}

// WithDecompressor overrides the snappy default used for IsCompressed
// packets, e.g. to instrument or cache decompressed buffers.
func WithDecompressor(d frame.Decompressor) DecoderOption {
	return DecoderOption{func(c *config) { c.decompressor = d }}
}

// WithResourceManifest preloads a resource-path manifest block (optionally
// zstd-framed) so Resource-tagged fields resolve to paths from the first
// entity onward instead of falling back to decimal ids.
func WithResourceManifest(data []byte) DecoderOption {
	return DecoderOption{func(c *config) { c.resourceData = data }}
}

// WithRequire pre-registers inner packet ids to forward via Observer.OnPacket,
// equivalent to calling Decoder.Require for each id before the first Parse.
func WithRequire(ids ...int32) DecoderOption {
	return DecoderOption{func(c *config) { c.requireAtOpen = append(c.requireAtOpen, ids...) }}
}

func newConfig(opts []DecoderOption) *config {
	c := &config{observer: NoopObserver{}, decompressor: frame.DefaultDecompressor}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// SeekOption is a configuration setting for Decoder.Seek.
type SeekOption struct{ apply func(*seekConfig) }

type seekConfig struct {
	fineGrainedWindow float64
}

// WithFineGrainedWindow overrides the 61-second default window (§4.10 step
// 5) within which the seek engine switches from checking game time every
// few packets to checking it after every packet, to avoid overshoot.
// Packets are dispatched one at a time either way.
func WithFineGrainedWindow(seconds float64) SeekOption {
	return SeekOption{func(c *seekConfig) { c.fineGrainedWindow = seconds }}
}

func newSeekConfig(opts []SeekOption) *seekConfig {
	c := &seekConfig{fineGrainedWindow: 61}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}
