package lnclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/rs/zerolog"
)

// ErrBadRPCServer is returned when an rpcserver value fails sanitation
// before being passed to the lncli binary.
var ErrBadRPCServer = errors.New("invalid rpcserver")

// rpcHostRE bounds the characters an rpcserver host may carry before it is
// interpolated into command-line arguments.
var rpcHostRE = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

// CLIClient talks to lightning daemons through the lncli binary. Auth
// material (macaroon, TLS cert) is resolved per node from path templates
// keyed by rpcserver.
//
// Every call has a bounded timeout and a small fixed retry count with
// sleep between attempts; exhausting retries surfaces a typed failure or
// error to the caller rather than propagating a raw exec fault.
type CLIClient struct {
	// Bin is the lncli binary path.
	Bin string
	// MacaroonPathTpl and TLSCertPathTpl are expanded with the rpcserver
	// value, e.g. "/etc/lnboard/%s-invoice.macaroon".
	MacaroonPathTpl string
	TLSCertPathTpl  string

	// Timeout bounds a single lncli invocation.
	Timeout time.Duration
	// Retries is the number of attempts for hard transport failures.
	Retries int
	// RetrySleep is slept between attempts.
	RetrySleep time.Duration

	Log zerolog.Logger
}

// NewCLIClient returns a CLIClient with conservative exec defaults.
func NewCLIClient(bin, macaroonTpl, tlsCertTpl string, log zerolog.Logger) *CLIClient {
	return &CLIClient{
		Bin:             bin,
		MacaroonPathTpl: macaroonTpl,
		TLSCertPathTpl:  tlsCertTpl,
		Timeout:         30 * time.Second,
		Retries:         3,
		RetrySleep:      2 * time.Second,
		Log:             log,
	}
}

// sanitizeRPCServer rejects rpcserver values that could smuggle extra
// arguments into the lncli command line.
func sanitizeRPCServer(rpcserver string) error {
	parts := strings.Split(rpcserver, ":")
	if len(parts) > 2 {
		return fmt.Errorf("%w: too many colons in %q", ErrBadRPCServer, rpcserver)
	}
	if !rpcHostRE.MatchString(parts[0]) {
		return fmt.Errorf("%w: host part of %q", ErrBadRPCServer, rpcserver)
	}
	if len(parts) == 2 {
		if _, err := strconv.Atoi(parts[1]); err != nil {
			return fmt.Errorf("%w: port part of %q", ErrBadRPCServer, rpcserver)
		}
	}
	return nil
}

// authArgs builds the per-node authentication arguments.
func (c *CLIClient) authArgs(rpcserver string) []string {
	return []string{
		"--macaroonpath", fmt.Sprintf(c.MacaroonPathTpl, rpcserver),
		"--tlscertpath", fmt.Sprintf(c.TLSCertPathTpl, rpcserver),
		"--rpcserver", rpcserver,
	}
}

// run executes one lncli invocation under the client timeout and returns
// combined output. The FailureType classifies faults: timeout when the
// deadline elapsed, exit for any other command failure.
func (c *CLIClient) run(ctx context.Context, rpcserver string, args ...string) ([]byte, FailureType, error) {
	if err := sanitizeRPCServer(rpcserver); err != nil {
		return nil, FailureExit, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	full := append(c.authArgs(rpcserver), args...)
	cmd := exec.CommandContext(ctx, c.Bin, full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return out, FailureTimeout, fmt.Errorf("lncli %s timed out: %w", args[0], ctx.Err())
		}
		return out, FailureExit, fmt.Errorf("lncli %s failed: %w", args[0], err)
	}
	return out, "", nil
}

// runRetry wraps run with the bounded retry loop. It retries both timeout
// and exit failures; the last failure wins.
func (c *CLIClient) runRetry(ctx context.Context, rpcserver string, args ...string) ([]byte, FailureType, error) {
	attempts := c.Retries
	if attempts < 1 {
		attempts = 1
	}

	var (
		out   []byte
		ftype FailureType
		err   error
	)
	for i := 0; i < attempts; i++ {
		out, ftype, err = c.run(ctx, rpcserver, args...)
		if err == nil {
			return out, "", nil
		}
		c.Log.Warn().
			Str("rpcserver", rpcserver).
			Str("command", args[0]).
			Int("attempt", i+1).
			Err(err).
			Msg("lncli attempt failed")
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return out, FailureTimeout, ctx.Err()
			case <-time.After(c.RetrySleep):
			}
		}
	}
	return out, ftype, err
}

// AddInvoice creates an invoice on the node.
func (c *CLIClient) AddInvoice(ctx context.Context, rpcserver, memo string, amt int64, expiry time.Duration) (AddResult, error) {
	out, _, err := c.runRetry(ctx, rpcserver,
		"addinvoice",
		"--memo", memo,
		"--amt", strconv.FormatInt(amt, 10),
		"--expiry", strconv.FormatInt(int64(expiry.Seconds()), 10),
	)
	if err != nil {
		return AddResult{}, err
	}

	var res AddResult
	if err := json.Unmarshal(out, &res); err != nil {
		return AddResult{}, fmt.Errorf("parse addinvoice output: %w", err)
	}
	return res, nil
}

// ListInvoices pages node-side invoices in ascending add_index order.
func (c *CLIClient) ListInvoices(ctx context.Context, rpcserver string, indexOffset uint64, max int) (ListResult, error) {
	out, _, err := c.runRetry(ctx, rpcserver,
		"listinvoices",
		"--index_offset", strconv.FormatUint(indexOffset, 10),
		"--max_invoices", strconv.Itoa(max),
		"--reversed=false",
	)
	if err != nil {
		return ListResult{}, err
	}

	var res ListResult
	if err := json.Unmarshal(out, &res); err != nil {
		return ListResult{}, fmt.Errorf("parse listinvoices output: %w", err)
	}
	return res, nil
}

// VerifyMessage asks the node to verify a signature and recover the
// signer pubkey.
func (c *CLIClient) VerifyMessage(ctx context.Context, rpcserver, msg, sig string) (VerifyResult, error) {
	out, _, err := c.runRetry(ctx, rpcserver,
		"verifymessage",
		"--msg", msg,
		"--sig", sig,
	)
	if err != nil {
		return VerifyResult{}, err
	}

	var res VerifyResult
	if err := json.Unmarshal(out, &res); err != nil {
		return VerifyResult{}, fmt.Errorf("parse verifymessage output: %w", err)
	}
	return res, nil
}

// DecodePayReq decodes a BOLT11 payment request locally. BOLT11 strings
// are self-describing, so no RPC round trip is needed; decode faults are
// reported with the exit failure type.
func (c *CLIClient) DecodePayReq(ctx context.Context, rpcserver, payReq string) DecodeResult {
	if err := ctx.Err(); err != nil {
		return DecodeResult{FailureType: FailureTimeout, Stdouterr: err.Error()}
	}

	bolt11, err := decodepay.Decodepay(strings.TrimSpace(payReq))
	if err != nil {
		return DecodeResult{FailureType: FailureExit, Stdouterr: err.Error()}
	}
	return DecodeResult{
		Success:     true,
		NumSatoshis: bolt11.MSatoshi / 1000,
		NumMsat:     bolt11.MSatoshi,
	}
}

// PayInvoice pays a BOLT11 payment request through the node.
func (c *CLIClient) PayInvoice(ctx context.Context, rpcserver, payReq string) PayResult {
	out, ftype, err := c.runRetry(ctx, rpcserver,
		"payinvoice", "--force", payReq,
	)
	if err != nil {
		return PayResult{FailureType: ftype, Stdouterr: string(out) + err.Error()}
	}
	return PayResult{Success: true}
}
