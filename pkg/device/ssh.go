package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/fsconf-network/fsconf/pkg/util"
)

// Transfer copies files to device storage. The SSH connection opened by
// Session.Open implements it with the SCP sink protocol.
type Transfer interface {
	Upload(ctx context.Context, path string, content []byte) error
	Close() error
}

// TransferDialer opens the file-transfer channel for a profile.
type TransferDialer func(ctx context.Context, p Profile) (Transfer, error)

// SSHConn is an SSH connection to the device's management plane.
type SSHConn struct {
	client *ssh.Client
	device string
}

// DialSSH dials SSH with password authentication. The host key is checked
// against the profile's known_hosts file unless InsecureHostKey is set.
func DialSSH(ctx context.Context, p Profile) (Transfer, error) {
	callback, err := hostKeyCallback(p)
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User: p.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(p.Password),
		},
		HostKeyCallback: callback,
		Timeout:         p.Timeout,
	}

	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.SSHPort))
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake %s: %w", addr, err)
	}
	return &SSHConn{client: ssh.NewClient(c, chans, reqs), device: p.Name}, nil
}

func hostKeyCallback(p Profile) (ssh.HostKeyCallback, error) {
	if p.InsecureHostKey {
		util.WithDevice(p.Name).Warn("SSH host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := p.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts %s: %w", path, err)
	}
	return callback, nil
}

// Close closes the SSH connection.
func (c *SSHConn) Close() error {
	return c.client.Close()
}

// Upload writes content to path ("flash:cand.cfg") with the SCP sink
// protocol: the remote side runs "scp -t <path>" and acknowledges each step
// with a zero byte.
func (c *SSHConn) Upload(ctx context.Context, path string, content []byte) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("scp stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("scp stdout: %w", err)
	}
	if err := session.Start("scp -t " + path); err != nil {
		return fmt.Errorf("starting scp: %w", err)
	}

	start := time.Now()
	if err := scpSend(stdin, bufio.NewReader(stdout), remoteBase(path), content); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	stdin.Close()
	if err := session.Wait(); err != nil {
		var exit *ssh.ExitMissingError
		if !errors.As(err, &exit) {
			return fmt.Errorf("scp: %w", err)
		}
	}

	util.WithDevice(c.device).Debugf("uploaded %s (%d bytes) in %v", path, len(content), time.Since(start).Round(time.Millisecond))
	return nil
}

// scpSend runs the sender side of a single-file SCP transfer.
func scpSend(w io.Writer, r *bufio.Reader, name string, content []byte) error {
	if err := scpAck(r); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "C0644 %d %s\n", len(content), name); err != nil {
		return fmt.Errorf("scp header: %w", err)
	}
	if err := scpAck(r); err != nil {
		return err
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("scp data: %w", err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("scp data: %w", err)
	}
	return scpAck(r)
}

func scpAck(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("scp: reading response: %w", err)
	}
	if b == 0 {
		return nil
	}
	msg, _ := r.ReadString('\n')
	return fmt.Errorf("scp: remote error: %s", strings.TrimSpace(msg))
}

// remoteBase returns the file name part of a device path, which may use a
// "<fs>:" prefix instead of directories.
func remoteBase(path string) string {
	if i := strings.LastIndexAny(path, ":/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
