package ucc

import (
	"fmt"
	"strings"
)

// CAPIStatus is the value of the leading "status" field of a CAPI reply.
type CAPIStatus string

const (
	StatusRunning  CAPIStatus = "RUNNING"
	StatusComplete CAPIStatus = "COMPLETE"
	StatusError    CAPIStatus = "ERROR"
	StatusInvalid  CAPIStatus = "INVALID"
)

// CAPIParam is one name/value pair following the status of a CAPI reply.
type CAPIParam struct {
	Name  string
	Value string
}

// CAPIReply is a parsed "status,<STATUS>[,name,value]..." line.
type CAPIReply struct {
	Status CAPIStatus
	Params []CAPIParam
}

// CAPIError is the error form of an ERROR or INVALID reply.
type CAPIError struct {
	Status  CAPIStatus
	Message string
}

func (e *CAPIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device replied status %s", e.Status)
	}
	return fmt.Sprintf("device replied status %s: %s", e.Status, e.Message)
}

// ParseCAPIReply parses a CAPI reply line. Status values are normalized to upper case; parameter
// names and values are kept as sent.
func ParseCAPIReply(line string) (CAPIReply, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 2 || !strings.EqualFold(strings.TrimSpace(fields[0]), "status") {
		return CAPIReply{}, fmt.Errorf("malformed CAPI reply %q", line)
	}
	status := CAPIStatus(strings.ToUpper(strings.TrimSpace(fields[1])))
	switch status {
	case StatusRunning, StatusComplete, StatusError, StatusInvalid:
	default:
		return CAPIReply{}, fmt.Errorf("unknown CAPI status %q in reply %q", fields[1], line)
	}
	rest := fields[2:]
	if len(rest)%2 != 0 {
		return CAPIReply{}, fmt.Errorf("CAPI reply %q has a parameter without a value", line)
	}
	reply := CAPIReply{Status: status}
	for i := 0; i < len(rest); i += 2 {
		reply.Params = append(reply.Params, CAPIParam{
			Name:  strings.TrimSpace(rest[i]),
			Value: strings.TrimSpace(rest[i+1]),
		})
	}
	return reply, nil
}

// Get returns the value of the first parameter whose name matches, ignoring case.
func (r CAPIReply) Get(name string) (string, bool) {
	for _, p := range r.Params {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// Err returns a *CAPIError for ERROR and INVALID replies, and nil otherwise.
func (r CAPIReply) Err() error {
	if r.Status != StatusError && r.Status != StatusInvalid {
		return nil
	}
	message, ok := r.Get("errorCode")
	if !ok {
		pairs := make([]string, 0, len(r.Params))
		for _, p := range r.Params {
			pairs = append(pairs, p.Name+"="+p.Value)
		}
		message = strings.Join(pairs, ", ")
	}
	return &CAPIError{Status: r.Status, Message: message}
}
