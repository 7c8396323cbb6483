package ssh

import (
	"bytes"
	"context"
	stderr "errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	gossh "golang.org/x/crypto/ssh"

	"github.com/objectfs/sharedriver/internal/config"
	"github.com/objectfs/sharedriver/internal/executor"
	"github.com/objectfs/sharedriver/internal/logging"
	"github.com/objectfs/sharedriver/pkg/errors"
)

// NewDialer returns a DialFunc for the appliance described by opts.
func NewDialer(opts config.SSHOptions, logger *zap.Logger) (DialFunc, error) {
	logger = logging.OrNop(logger)
	if opts.Host == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "ssh_host is required").
			WithComponent("ssh")
	}

	clientConfig, err := clientConfig(opts, logger)
	if err != nil {
		return nil, err
	}

	port := opts.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(port))

	return func(ctx context.Context) (Client, error) {
		return dial(ctx, addr, clientConfig)
	}, nil
}

func clientConfig(opts config.SSHOptions, logger *zap.Logger) (*gossh.ClientConfig, error) {
	var auth []gossh.AuthMethod
	if opts.PrivateKeyPath != "" {
		pem, err := os.ReadFile(opts.PrivateKeyPath)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to read ssh private key").
				WithComponent("ssh")
		}
		signer, err := gossh.ParsePrivateKey(pem)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to parse ssh private key").
				WithComponent("ssh")
		}
		auth = append(auth, gossh.PublicKeys(signer))
	}
	if opts.Password != "" {
		auth = append(auth, gossh.Password(opts.Password))
	}
	if len(auth) == 0 {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "ssh_password or ssh_private_key is required").
			WithComponent("ssh")
	}

	hostKeyCallback, err := hostKeyCallback(opts, logger)
	if err != nil {
		return nil, err
	}

	return &gossh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.ConnTimeoutDuration(),
	}, nil
}

func hostKeyCallback(opts config.SSHOptions, logger *zap.Logger) (gossh.HostKeyCallback, error) {
	if opts.HostKey == "" {
		logger.Warn("SSH host key checking is disabled", zap.String("host", opts.Host))
		return gossh.InsecureIgnoreHostKey(), nil
	}
	key, _, _, _, err := gossh.ParseAuthorizedKey([]byte(opts.HostKey))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to parse ssh_host_key").
			WithComponent("ssh")
	}
	return gossh.FixedHostKey(key), nil
}

func dial(ctx context.Context, addr string, cfg *gossh.ClientConfig) (Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := gossh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return &sshClient{client: gossh.NewClient(c, chans, reqs)}, nil
}

type sshClient struct {
	client *gossh.Client
}

func (c *sshClient) Run(ctx context.Context, command string, stdin string) (executor.Result, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return executor.Result{ExitCode: -1}, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var stdout, errout bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &errout
	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return executor.Result{ExitCode: -1}, ctx.Err()
	}

	result := executor.Result{Stdout: stdout.String(), Stderr: errout.String()}
	var exitErr *gossh.ExitError
	switch {
	case err == nil:
		return result, nil
	case stderr.As(err, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
		return result, nil
	default:
		result.ExitCode = -1
		return result, err
	}
}

func (c *sshClient) Close() error {
	return c.client.Close()
}
