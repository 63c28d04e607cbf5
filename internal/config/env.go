package config

import "github.com/caarlos0/env/v11"

// ParseEnv fills target's env-tagged fields from the process environment.
// Fields whose variable is unset keep their current value
func ParseEnv(target any) error {
	return env.Parse(target)
}
