package config

import "github.com/abdul-hamid-achik/apicontract/packages/http"

const DefaultOutput = "console"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:         int(http.DefaultTimeout.Milliseconds()),
		FollowRedirects: BoolPtr(true),
		ValidateSSL:     BoolPtr(true),
		Output:          DefaultOutput,
		Parallel:        BoolPtr(false),
		Concurrency:     5,
		Bail:            BoolPtr(false),
		FailOnMalformed: BoolPtr(false),
		Verbose:         BoolPtr(false),
		NoColor:         BoolPtr(false),
	}
}

// IsDefault reports whether c holds only default values.
func (c *Config) IsDefault() bool {
	d := DefaultConfig()
	return c.DefaultEnvironment == "" &&
		len(c.Environments) == 0 &&
		c.Timeout == d.Timeout &&
		c.GetFollowRedirects() == d.GetFollowRedirects() &&
		c.GetValidateSSL() == d.GetValidateSSL() &&
		c.Proxy == "" &&
		len(c.Headers) == 0 &&
		c.Output == d.Output &&
		c.OutputFile == "" &&
		c.EnvFile == "" &&
		c.History == "" &&
		c.GetParallel() == d.GetParallel() &&
		c.Concurrency == d.Concurrency &&
		c.RateLimit == 0 &&
		c.GetBail() == d.GetBail() &&
		c.GetFailOnMalformed() == d.GetFailOnMalformed() &&
		c.GetVerbose() == d.GetVerbose() &&
		c.GetNoColor() == d.GetNoColor() &&
		c.Notify == nil &&
		c.WaitFor == nil
}
