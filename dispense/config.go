package dispense

// Config is a configuration for the dispense application.
type Config struct {
	HTTPAddr    string
	ISO8583Addr string
	// OverdraftLimit is the lowest balance an overdraft-eligible account may
	// reach. Negative; applies process-wide, not per account.
	OverdraftLimit int64
	// RateLimitRPS / RateLimitBurst shape the per-caller budget on the HTTP
	// API.
	RateLimitRPS   float64
	RateLimitBurst int
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:       "localhost:9090",
		ISO8583Addr:    "localhost:8583",
		OverdraftLimit: -10000,
		RateLimitRPS:   20,
		RateLimitBurst: 40,
	}
}
