package connection

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/jmx"
)

// Discoverer finds the management endpoint of the local instance.
type Discoverer interface {
	// ConnectionURL returns the comma-separated endpoint list of domain.
	ConnectionURL(ctx context.Context, domainID string) (string, error)
	// SSLOption returns the TLS protocol setting of domain, or "" when the
	// domain does not define one.
	SSLOption(ctx context.Context, domainID, user, password string) (string, error)
}

// Runner executes a command with stdin and returns its standard output.
type Runner func(ctx context.Context, stdin, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, stdin, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// StreamtoolDiscoverer asks the runtime's streamtool command.
type StreamtoolDiscoverer struct {
	streamtool string
	run        Runner
	logger     *slog.Logger
}

// NewStreamtoolDiscoverer uses $install/bin/streamtool. A nil run uses
// ExecRunner.
func NewStreamtoolDiscoverer(install string, run Runner, logger *slog.Logger) *StreamtoolDiscoverer {
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamtoolDiscoverer{
		streamtool: filepath.Join(install, "bin", "streamtool"),
		run:        run,
		logger:     logger,
	}
}

// ConnectionURL runs "streamtool getjmxconnect -d <domain>" and joins the
// output lines with commas. The result must be a service URL list.
func (d *StreamtoolDiscoverer) ConnectionURL(ctx context.Context, domainID string) (string, error) {
	out, err := d.run(ctx, "", d.streamtool, "getjmxconnect", "-d", domainID)
	if err != nil {
		return "", errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrDiscovery, err),
			"StreamtoolDiscoverer", "ConnectionURL", "run streamtool getjmxconnect")
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	result := strings.TrimSuffix(strings.Join(lines, ","), ",")
	if !strings.HasPrefix(result, jmx.ServiceURLPrefix) {
		return "", errors.WrapFatal(fmt.Errorf("%w: unexpected getjmxconnect output %q", errors.ErrDiscovery, result),
			"StreamtoolDiscoverer", "ConnectionURL", "parse endpoint list")
	}
	d.logger.Info("Discovered management endpoints", "domain_id", domainID, "connection_url", result)
	return result, nil
}

// SSLOption runs "streamtool getdomainproperty -d <domain> -U <user>
// jmx.sslOption" with the password on stdin and returns the value after the
// first '='.
func (d *StreamtoolDiscoverer) SSLOption(ctx context.Context, domainID, user, password string) (string, error) {
	out, err := d.run(ctx, password+"\n", d.streamtool, "getdomainproperty", "-d", domainID, "-U", user, "jmx.sslOption")
	if err != nil {
		return "", errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrDiscovery, err),
			"StreamtoolDiscoverer", "SSLOption", "run streamtool getdomainproperty")
	}
	result := strings.Join(strings.Fields(string(out)), "")
	_, value, found := strings.Cut(result, "=")
	if !found {
		return "", nil
	}
	d.logger.Info("Discovered TLS protocols", "domain_id", domainID, "ssl_option", value)
	return value, nil
}
