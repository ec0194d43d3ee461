package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConfig configures the SSH inventory source.
type SSHConfig struct {
	Username string
	// One of Password or PrivateKeyPath must be set.
	Password       string
	PrivateKeyPath string
	// Command is the JSON-emitting inventory command run on each host
	// (default "esxcli --formatter=json system version get").
	Command string
	// Port defaults to 22 when the address carries none.
	Port int
}

// SSHSource queries hosts by running an inventory command over SSH. Useful
// for standalone hosts that have no management API reachable.
type SSHSource struct {
	cfg    SSHConfig
	signer ssh.Signer
	logger *slog.Logger
}

// NewSSHSource creates an SSH inventory source. The private key, when
// configured, is loaded once up front so a bad key fails the run before any
// target is scheduled.
func NewSSHSource(cfg SSHConfig, logger *slog.Logger) (*SSHSource, error) {
	if cfg.Username == "" {
		return nil, fmt.Errorf("ssh source: username is required")
	}
	if cfg.Password == "" && cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf("ssh source: password or private key is required")
	}
	if cfg.Command == "" {
		cfg.Command = "esxcli --formatter=json system version get"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}

	s := &SSHSource{cfg: cfg, logger: logger.With("component", "ssh_source")}
	if cfg.PrivateKeyPath != "" {
		key, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("ssh source: reading private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("ssh source: parsing private key: %w", err)
		}
		s.signer = signer
	}
	return s, nil
}

// Query connects to the host, runs the inventory command, and returns its
// stdout as the raw payload.
func (s *SSHSource) Query(ctx context.Context, address string) (json.RawMessage, error) {
	var auth []ssh.AuthMethod
	if s.cfg.Password != "" {
		auth = append(auth, ssh.Password(s.cfg.Password))
	}
	if s.signer != nil {
		auth = append(auth, ssh.PublicKeys(s.signer))
	}

	sshConfig := &ssh.ClientConfig{
		User:            s.cfg.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	if deadline, ok := ctx.Deadline(); ok {
		sshConfig.Timeout = time.Until(deadline)
	}

	if !strings.Contains(address, ":") {
		address = fmt.Sprintf("%s:%d", address, s.cfg.Port)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s: %w", address, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session on %s: %w", address, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(s.cfg.Command); err != nil {
		return nil, fmt.Errorf("running %q on %s: %w (stderr: %s)",
			s.cfg.Command, address, err, strings.TrimSpace(stderr.String()))
	}

	s.logger.Debug("inventory command finished", "address", address, "bytes", stdout.Len())
	return stdout.Bytes(), nil
}
