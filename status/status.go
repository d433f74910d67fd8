// Package status defines the judging status of a record and its
// wire / storage representations.
package status

import (
	"fmt"
)

// Status defines the judging state of a record
type Status int

// Defines record judging states. The numeric values are persisted, do not
// reorder.
const (
	// not initialized status (as error)
	StatusInvalid Status = iota

	// pre-terminal states
	StatusWaiting
	StatusFetched
	StatusCompiling
	StatusJudging

	// terminal states
	StatusAccepted
	StatusWrongAnswer
	StatusTimeLimitExceeded
	StatusMemoryLimitExceeded
	StatusOutputLimitExceeded
	StatusRuntimeError
	StatusCompileError
	StatusSystemError
	StatusCanceled
)

var statusToString = []string{
	"Invalid",
	"Waiting",
	"Fetched",
	"Compiling",
	"Judging",
	"Accepted",
	"Wrong Answer",
	"Time Limit Exceeded",
	"Memory Limit Exceeded",
	"Output Limit Exceeded",
	"Runtime Error",
	"Compile Error",
	"System Error",
	"Canceled",
}

// stringToStatus map string to corresponding Status
var stringToStatus = make(map[string]Status)

func (s Status) String() string {
	si := int(s)
	if si < 0 || si >= len(statusToString) {
		return statusToString[0] // invalid
	}
	return statusToString[si]
}

// Done returns true if the status is terminal for one judging attempt
func (s Status) Done() bool {
	return s >= StatusAccepted
}

// MarshalJSON convert status into string
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte("\"" + s.String() + "\""), nil
}

// UnmarshalJSON convert string into status
func (s *Status) UnmarshalJSON(b []byte) error {
	str := string(b)
	if len(str) < 2 || str[0] != '"' || str[len(str)-1] != '"' {
		return fmt.Errorf("invalid status: %s", str)
	}
	v, err := StringToStatus(str[1 : len(str)-1])
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// StringToStatus convert string to Status
func StringToStatus(s string) (Status, error) {
	v, ok := stringToStatus[s]
	if !ok {
		return 0, fmt.Errorf("invalid string converting: %s", s)
	}
	return v, nil
}

func init() {
	for i, v := range statusToString {
		stringToStatus[v] = Status(i)
	}
}
