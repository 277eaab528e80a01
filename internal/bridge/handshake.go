package bridge

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/sandia-minimega/redimux/internal/resp"
	"github.com/sandia-minimega/redimux/internal/ringbuf"
	"github.com/sandia-minimega/redimux/pkg/rerror"
)

// handshake runs spec.md 4.D's per-bridge handshake sequence synchronously,
// before the read/write loops start. It returns the protocol the bridge
// should decode with from here on (RESP3 if WantRESP3 is set and HELLO 3
// was accepted, RESP2 otherwise).
//
// conn arrives already upgraded if TLS is in play: the handshake itself is
// out of scope for this package (spec.md 1, "assumed provided by a
// socket-layer library") and is entirely the responsibility of cfg.Dial,
// the bridge's one transport injection point.
func (b *Bridge) handshake(ctx context.Context, conn net.Conn) (resp.Protocol, error) {
	buf := ringbuf.New(512)
	dec := resp.NewDecoder(resp.Protocol2, buf)
	protocol := resp.Protocol2

	if b.cfg.WantRESP3 {
		args := [][]byte{[]byte("3")}
		if b.cfg.Password != "" {
			args = append(args, []byte("AUTH"))
			if b.cfg.Username != "" {
				args = append(args, []byte(b.cfg.Username))
			} else {
				args = append(args, []byte("default"))
			}
			args = append(args, []byte(b.cfg.Password))
		}
		if b.cfg.ClientName != "" {
			args = append(args, []byte("SETNAME"), []byte(b.cfg.ClientName))
		}
		frame := resp.EncodeCommand(append([][]byte{[]byte("HELLO")}, args...))
		reply, err := sendAndRecv(conn, buf, dec, frame)
		if err != nil {
			return 0, authOrProtocolErr(b.cfg.Endpoint, b.cfg.Role, err)
		}
		if reply.Kind == resp.KindError {
			if !strings.Contains(reply.Str, "unknown command") {
				return 0, classifyHandshakeError(b.cfg.Endpoint, b.cfg.Role, reply.Str)
			}
			// fall through to RESP2 handshake below.
		} else {
			protocol = resp.Protocol3
			dec.SetProtocol(resp.Protocol3)
		}
	}

	if protocol == resp.Protocol2 {
		if b.cfg.Password != "" {
			args := [][]byte{}
			if b.cfg.Username != "" {
				args = append(args, []byte(b.cfg.Username))
			}
			args = append(args, []byte(b.cfg.Password))
			frame := resp.EncodeCommand(append([][]byte{[]byte("AUTH")}, args...))
			reply, err := sendAndRecv(conn, buf, dec, frame)
			if err != nil {
				return 0, authOrProtocolErr(b.cfg.Endpoint, b.cfg.Role, err)
			}
			if reply.Kind == resp.KindError {
				return 0, classifyHandshakeError(b.cfg.Endpoint, b.cfg.Role, reply.Str)
			}
		}
		if b.cfg.ClientName != "" {
			frame := resp.EncodeCommand([][]byte{[]byte("CLIENT"), []byte("SETNAME"), []byte(b.cfg.ClientName)})
			if _, err := sendAndRecv(conn, buf, dec, frame); err != nil {
				return 0, authOrProtocolErr(b.cfg.Endpoint, b.cfg.Role, err)
			}
		}
	}

	// CLIENT SETINFO is best-effort: older servers reject it and that must
	// not fail the handshake (supplemented feature, see DESIGN.md).
	if b.cfg.LibName != "" {
		frame := resp.EncodeCommand([][]byte{[]byte("CLIENT"), []byte("SETINFO"), []byte("lib-name"), []byte(b.cfg.LibName)})
		sendAndRecv(conn, buf, dec, frame)
	}
	if b.cfg.LibVer != "" {
		frame := resp.EncodeCommand([][]byte{[]byte("CLIENT"), []byte("SETINFO"), []byte("lib-ver"), []byte(b.cfg.LibVer)})
		sendAndRecv(conn, buf, dec, frame)
	}

	if b.cfg.DB != 0 {
		frame := resp.EncodeCommand([][]byte{[]byte("SELECT"), []byte(fmt.Sprintf("%d", b.cfg.DB))})
		reply, err := sendAndRecv(conn, buf, dec, frame)
		if err != nil {
			return 0, authOrProtocolErr(b.cfg.Endpoint, b.cfg.Role, err)
		}
		if reply.Kind == resp.KindError {
			return 0, classifyHandshakeError(b.cfg.Endpoint, b.cfg.Role, reply.Str)
		}
	}

	return protocol, nil
}

// sendAndRecv writes frame and blocks for exactly one reply frame, used
// only during the synchronous handshake before the read/write loops exist.
func sendAndRecv(conn net.Conn, buf *ringbuf.Buffer, dec *resp.Decoder, frame []byte) (resp.RawResult, error) {
	if _, err := conn.Write(frame); err != nil {
		return resp.RawResult{}, err
	}
	scratch := make([]byte, 4096)
	for {
		r, err := dec.Next()
		if err == nil {
			return r, nil
		}
		if err != ringbuf.ErrNeedMore {
			return resp.RawResult{}, err
		}
		n, rerr := conn.Read(scratch)
		if rerr != nil {
			return resp.RawResult{}, rerr
		}
		buf.Write(scratch[:n])
	}
}

func authOrProtocolErr(endpoint string, role Role, err error) error {
	return &rerror.ConnectionFailure{FailureType: rerror.ProtocolFailure, Endpoint: endpoint, Role: role.String(), Underlying: err}
}

func classifyHandshakeError(endpoint string, role Role, msg string) error {
	ft := rerror.ProtocolFailure
	if strings.HasPrefix(msg, "WRONGPASS") || strings.HasPrefix(msg, "NOAUTH") || strings.Contains(msg, "invalid username-password") {
		ft = rerror.AuthenticationFailure
	}
	return &rerror.ConnectionFailure{FailureType: ft, Endpoint: endpoint, Role: role.String(), Underlying: fmt.Errorf("%s", msg)}
}
