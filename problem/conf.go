package problem

import (
	"github.com/goccy/go-yaml"
)

// Config defines the judge configuration of a problem
type Config struct {
	Type string `bson:"type,omitempty" json:"type,omitempty" yaml:"type"`
	// TimeLimit in ms, MemoryLimit in KiB
	TimeLimit   uint64 `bson:"timeLimit,omitempty" json:"timeLimit,omitempty" yaml:"timeLimit"`
	MemoryLimit uint64 `bson:"memoryLimit,omitempty" json:"memoryLimit,omitempty" yaml:"memoryLimit"`
	FullScore   int    `bson:"fullScore,omitempty" json:"fullScore,omitempty" yaml:"fullScore"`
	// Detail false suppresses per-case feedback (contest pretests)
	Detail *bool `bson:"detail,omitempty" json:"detail,omitempty" yaml:"detail"`
}

const (
	defaultTimeLimit   = 1000
	defaultMemoryLimit = 256 * 1024
	defaultFullScore   = 100
)

// ParseConfig loads a problem config document and fills defaults
func ParseConfig(raw []byte) (*Config, error) {
	c := new(Config)
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, err
		}
	}
	if c.TimeLimit == 0 {
		c.TimeLimit = defaultTimeLimit
	}
	if c.MemoryLimit == 0 {
		c.MemoryLimit = defaultMemoryLimit
	}
	if c.FullScore == 0 {
		c.FullScore = defaultFullScore
	}
	return c, nil
}
