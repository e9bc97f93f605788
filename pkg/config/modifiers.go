package config

func SetLogLevel(level string) func(*Config) {
	return func(cfg *Config) {
		if level != "" {
			cfg.LogLevel = level
		}
	}
}

func SetJSONLogging(enabled bool) func(*Config) {
	return func(cfg *Config) {
		if enabled {
			cfg.JSONLogging = true
		}
	}
}

func SetPollInterval(expr string) func(*Config) {
	return func(cfg *Config) {
		if expr != "" && isValidEveryExpression(expr) {
			cfg.PollInterval = expr
		}
	}
}

func SetMetricsAddr(addr string) func(*Config) {
	return func(cfg *Config) {
		if addr != "" {
			cfg.MetricsAddr = addr
		}
	}
}
