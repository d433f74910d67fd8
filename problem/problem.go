// Package problem is the narrow collaborator boundary to problem storage.
// The judging core only needs to resolve the test-data handle and judge
// configuration of a problem; everything else about problems lives outside
// this repo.
package problem

import (
	"context"
	"errors"
	"fmt"
)

// ErrProblemNotFound indicates an unknown (domain, pid) pair
var ErrProblemNotFound = errors.New("problem not found")

// NotFoundError wraps ErrProblemNotFound with the lookup key
type NotFoundError struct {
	DomainID string
	PID      int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("problem not found: %s/%d", e.DomainID, e.PID)
}

func (e *NotFoundError) Unwrap() error { return ErrProblemNotFound }

// Problem carries what a judger needs to judge one problem
type Problem struct {
	DomainID string `bson:"domainId" json:"domainId"`
	PID      int64  `bson:"pid" json:"pid"`
	Title    string `bson:"title" json:"title"`
	// Data is the opaque test-data handle passed through to the judger
	Data   string  `bson:"data" json:"data"`
	Config *Config `bson:"config" json:"config"`
}

// Source resolves problems by id
type Source interface {
	Get(ctx context.Context, domainID string, pid int64) (*Problem, error)
}
