package types

import "strings"

// HeadCurrent selects the repository's current default branch.
const HeadCurrent = "HEAD"

// Config holds the construction-time options of a repository.
type Config struct {
	Repo   string `json:"repo" yaml:"repo" mapstructure:"repo"`
	Head   string `json:"head" yaml:"head" mapstructure:"head"`
	Create bool   `json:"create" yaml:"create" mapstructure:"create"`
	Bare   bool   `json:"bare" yaml:"bare" mapstructure:"bare"`
}

// DefaultConfig returns a Config for repo using the current head, creating
// a non-bare repository when none exists.
func DefaultConfig(repo string) Config {
	return Config{
		Repo:   repo,
		Head:   HeadCurrent,
		Create: true,
	}
}

// HeadName returns the configured head, substituting HeadCurrent when unset.
func (c Config) HeadName() string {
	if c.Head == "" {
		return HeadCurrent
	}
	return c.Head
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Repo == "" {
		return ErrRepoEmpty
	}
	head := c.HeadName()
	if strings.ContainsAny(head, "/\\ \t\n") || strings.HasPrefix(head, ".") {
		return ErrHeadInvalid
	}
	return nil
}
