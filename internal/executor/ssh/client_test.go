package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"

	"github.com/objectfs/sharedriver/internal/config"
	"github.com/objectfs/sharedriver/internal/executor"
	"github.com/objectfs/sharedriver/pkg/errors"
)

type commandHandler func(command string) (stdout, stderr string, status uint32)

// testServer is a minimal in-process SSH server answering exec requests.
type testServer struct {
	listener net.Listener
	hostKey  gossh.PublicKey
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns []net.Conn
}

func startServer(t *testing.T, handler commandHandler) *testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &gossh.ServerConfig{
		PasswordCallback: func(c gossh.ConnMetadata, pass []byte) (*gossh.Permissions, error) {
			if c.User() == "admin" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied for %s", c.User())
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{listener: ln, hostKey: signer.PublicKey()}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, nc)
			s.mu.Unlock()

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serve(nc, cfg, handler)
			}()
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		s.mu.Lock()
		for _, c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
	return s
}

func (s *testServer) serve(nc net.Conn, cfg *gossh.ServerConfig, handler commandHandler) {
	_, chans, reqs, err := gossh.NewServerConn(nc, cfg)
	if err != nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		gossh.DiscardRequests(reqs)
	}()

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(gossh.UnknownChannelType, "unsupported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer ch.Close()
			for req := range chReqs {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				if err := gossh.Unmarshal(req.Payload, &payload); err != nil {
					_ = req.Reply(false, nil)
					continue
				}
				_ = req.Reply(true, nil)

				stdout, stderr, status := handler(payload.Command)
				_, _ = io.WriteString(ch, stdout)
				_, _ = io.WriteString(ch.Stderr(), stderr)
				_, _ = ch.SendRequest("exit-status", false, gossh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

func (s *testServer) options() config.SSHOptions {
	addr := s.listener.Addr().(*net.TCPAddr)
	opts := config.DefaultSSHOptions()
	opts.Host = addr.IP.String()
	opts.Port = addr.Port
	opts.User = "admin"
	opts.Password = "secret"
	opts.ConnTimeout = 5
	opts.HostKey = string(gossh.MarshalAuthorizedKey(s.hostKey))
	return opts
}

func echoHandler(command string) (string, string, uint32) {
	if command == "false" {
		return "", "failed", 1
	}
	return "ran: " + command, "", 0
}

func TestDialer_RunsCommands(t *testing.T) {
	s := startServer(t, echoHandler)
	opts := s.options()

	dial, err := NewDialer(opts, nil)
	require.NoError(t, err)

	pool, err := NewPool(context.Background(), PoolConfigFrom(opts), dial)
	require.NoError(t, err)
	defer pool.Close()

	r := NewRunner(pool, "", nil)
	result, err := r.Execute(context.Background(), "exportfs", []string{"-v"}, executor.Options{})
	require.NoError(t, err)
	assert.Equal(t, "ran: exportfs -v", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)

	_, err = r.Execute(context.Background(), "false", nil, executor.Options{})
	var pe *executor.ProcessExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.ExitCode)
	assert.Equal(t, "failed", pe.Stderr)
}

func TestDialer_RejectsWrongHostKey(t *testing.T) {
	s := startServer(t, echoHandler)
	other := startServer(t, echoHandler)

	opts := s.options()
	opts.HostKey = other.options().HostKey

	dial, err := NewDialer(opts, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = dial(ctx)
	assert.Error(t, err)
}

func TestDialer_RejectsBadPassword(t *testing.T) {
	s := startServer(t, echoHandler)
	opts := s.options()
	opts.Password = "wrong"

	dial, err := NewDialer(opts, nil)
	require.NoError(t, err)

	_, err = dial(context.Background())
	assert.Error(t, err)
}

func TestNewDialer_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts config.SSHOptions
		code errors.ErrorCode
	}{
		{"missing host", config.SSHOptions{Password: "x"}, errors.ErrCodeMissingConfig},
		{"missing credentials", config.SSHOptions{Host: "h"}, errors.ErrCodeMissingConfig},
		{"bad host key", config.SSHOptions{Host: "h", Password: "x", HostKey: "not a key"}, errors.ErrCodeInvalidConfig},
		{"missing key file", config.SSHOptions{Host: "h", PrivateKeyPath: "/nonexistent/id_ed25519"}, errors.ErrCodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDialer(tt.opts, nil)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestDialer_UnreachableHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	opts := config.DefaultSSHOptions()
	opts.Host = "127.0.0.1"
	opts.Port = port
	opts.Password = "secret"

	dial, err := NewDialer(opts, nil)
	require.NoError(t, err)
	_, err = dial(context.Background())
	assert.Error(t, err, "nothing listens on port "+strconv.Itoa(port))
}
