package peephole

// Options tune an Engine
type Options struct {
	// Window enables matching of adjacent instruction pairs
	Window bool
	// Disabled lists rule and window idiom names to skip
	Disabled []string
	// MaxSteps bounds the number of worklist pops; 0 means unlimited
	MaxSteps int
}

// Option mutates Options
type Option func(*Options)

// DefaultOptions enables every rule and the window matcher
func DefaultOptions() Options {
	return Options{Window: true}
}

func WithWindow(on bool) Option {
	return func(o *Options) { o.Window = on }
}

func WithDisabledRules(names ...string) Option {
	return func(o *Options) { o.Disabled = append(o.Disabled, names...) }
}

func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}
