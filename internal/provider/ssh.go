package provider

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// HostProber checks the liveness of fixed SSH hosts. A host that completes
// an SSH handshake counts as live; a refused or timed-out connection counts
// as gone. Only configuration problems surface as errors.
type HostProber struct {
	user    string
	auth    []ssh.AuthMethod
	timeout time.Duration
}

func NewHostProber(user string, signer ssh.Signer) *HostProber {
	p := &HostProber{user: user, timeout: 10 * time.Second}
	if signer != nil {
		p.auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	}
	return p
}

// ListLiveHosts probes every host and returns the reachable subset.
func (p *HostProber) ListLiveHosts(ctx context.Context, hosts []string) ([]string, error) {
	if p.user == "" {
		return nil, fmt.Errorf("host prober: ssh user not configured")
	}

	var live []string
	for _, host := range hosts {
		if p.reachable(ctx, host) {
			live = append(live, host)
		}
	}
	return live, nil
}

func (p *HostProber) reachable(ctx context.Context, host string) bool {
	addr := net.JoinHostPort(host, "22")

	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	defer conn.Close()

	cfg := &ssh.ClientConfig{
		User:            p.user,
		Auth:            p.auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         p.timeout,
	}

	// An authentication failure still proves sshd is answering; only a
	// transport-level failure marks the host gone.
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_, ok := err.(*ssh.ServerAuthError)
		return ok
	}
	ssh.NewClient(c, chans, reqs).Close()
	return true
}
