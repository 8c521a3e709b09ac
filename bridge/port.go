package bridge

import (
	"io"

	"github.com/caffeineduck/tib/protocol"
)

// Port is the worker side of the bridge.
type Port struct {
	enc *protocol.Encoder
}

func NewPort(w io.Writer) *Port {
	return &Port{enc: protocol.NewEncoder(w)}
}

// SendResponse sends a success message. continues marks it as non-final.
func (p *Port) SendResponse(payload any, continues bool) error {
	msg, err := protocol.NewResponse(payload, continues)
	if err != nil {
		return err
	}
	return p.enc.Encode(msg)
}

// SendChunk sends streamed output; a final chunk ends the request successfully.
func (p *Port) SendChunk(out, err string, continues bool) error {
	if !continues {
		return p.SendResponse(protocol.Chunk{Stdout: out, Stderr: err}, false)
	}
	return p.enc.Encode(protocol.NewChunk(out, err))
}

// SendError ends the request with a failure.
func (p *Port) SendError(msg string) error {
	return p.enc.Encode(protocol.NewError(msg))
}
