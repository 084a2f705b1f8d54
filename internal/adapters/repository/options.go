package repository

// Option applies a configuration option to the Scoreboard.
type Option func(*Scoreboard)

// WithName labels the scoreboard, usually with its calculator name.
func WithName(name string) Option {
	return func(s *Scoreboard) {
		if name != "" {
			s.name = name
		}
	}
}

// WithPrecision sets the number of decimals scores are ranked with.
func WithPrecision(decimals int) Option {
	return func(s *Scoreboard) {
		if decimals >= 0 && decimals <= 9 {
			s.scale = pow10(decimals)
		}
	}
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
