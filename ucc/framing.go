package ucc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Framing defines how a command is put on the wire and how the end of its reply is recognized.
// Both are set by the device firmware; the harness only has to agree with it.
type Framing interface {
	// Encode returns the bytes to send for a command.
	Encode(command string) []byte

	// ReadReply reads one complete reply. Errors from the reader must be returned wrapped, not
	// replaced, so that timeouts can be detected.
	ReadReply(r *bufio.Reader) (string, error)
}

// LineFraming sends the command followed by a newline and treats the first line received as the
// reply. The line terminator ("\n" or "\r\n") is removed; nothing else is changed. If the peer
// closes the connection after a partial line, that partial line is the reply.
type LineFraming struct{}

func (LineFraming) Encode(command string) []byte {
	return []byte(command + "\n")
}

func (LineFraming) ReadReply(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		return "", err
	}
	return trimLineTerminator(line), nil
}

// CAPIFraming follows the Wi-Fi Alliance CAPI convention used by UCC listeners: the device first
// answers "status,RUNNING" and later a terminal "status,COMPLETE", "status,ERROR" or
// "status,INVALID" line. The terminal line is the reply; use ParseCAPIReply to interpret it.
type CAPIFraming struct{}

func (CAPIFraming) Encode(command string) []byte {
	return []byte(command + "\n")
}

func (CAPIFraming) ReadReply(r *bufio.Reader) (string, error) {
	for {
		raw, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && raw != "") {
			return "", err
		}
		line := strings.TrimSpace(raw)
		if line != "" {
			reply, parseErr := ParseCAPIReply(line)
			if parseErr != nil {
				return "", parseErr
			}
			if reply.Status != StatusRunning {
				return line, nil
			}
		}
		if err != nil {
			// The partial last line was a RUNNING status; nothing more can arrive.
			return "", err
		}
	}
}

// EOFFraming sends the command followed by a newline and treats everything received until the peer
// closes the connection as the reply, byte for byte.
type EOFFraming struct{}

func (EOFFraming) Encode(command string) []byte {
	return []byte(command + "\n")
}

func (EOFFraming) ReadReply(r *bufio.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseFraming returns the framing with the given name: "line", "capi" or "eof". An empty name
// selects LineFraming.
func ParseFraming(name string) (Framing, error) {
	switch strings.ToLower(name) {
	case "", "line":
		return LineFraming{}, nil
	case "capi":
		return CAPIFraming{}, nil
	case "eof":
		return EOFFraming{}, nil
	default:
		return nil, fmt.Errorf("unknown reply framing %q", name)
	}
}

func trimLineTerminator(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
