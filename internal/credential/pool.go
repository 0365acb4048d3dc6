// Package credential validates synthesis API keys and hands them out in order.
package credential

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/ttypes"
)

// DefaultProbeTimeout bounds a single validation call.
const DefaultProbeTimeout = 15 * time.Second

// Prober performs a cheap authenticated read-only call with a credential.
// A nil error means the credential is usable.
type Prober interface {
	Probe(ctx context.Context, cred ttypes.Credential) error
}

// Pool holds the validated credentials of one run, in configured order.
// It is not shared between runs.
type Pool struct {
	prober  Prober
	timeout time.Duration

	mu    sync.Mutex
	all   []ttypes.Credential
	valid []ttypes.Credential
	next  int
}

// NewPool creates an empty pool. Call Validate to fill it.
func NewPool(prober Prober, probeTimeout time.Duration) *Pool {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Pool{
		prober:  prober,
		timeout: probeTimeout,
	}
}

// Validate probes every secret once and keeps the ones that pass, in their
// original order. Blank and duplicate secrets are marked invalid without a
// probe. Validate resets the pool.
func (p *Pool) Validate(ctx context.Context, secrets []string) []ttypes.Credential {
	all := make([]ttypes.Credential, 0, len(secrets))
	valid := make([]ttypes.Credential, 0, len(secrets))
	seen := make(map[string]bool, len(secrets))

	for i, secret := range secrets {
		cred := ttypes.Credential{Ordinal: i + 1, Secret: strings.TrimSpace(secret)}

		switch {
		case cred.Secret == "":
			log.Warn("Skipping blank credential", "ordinal", cred.Ordinal)
			cred.Status = ttypes.CredentialInvalid
		case seen[cred.Secret]:
			log.Warn("Skipping duplicate credential", "ordinal", cred.Ordinal, "fingerprint", cred.Fingerprint())
			cred.Status = ttypes.CredentialInvalid
		case ctx.Err() != nil:
			cred.Status = ttypes.CredentialInvalid
		default:
			seen[cred.Secret] = true
			cred.Status = p.probe(ctx, cred)
		}

		all = append(all, cred)
		if cred.Status == ttypes.CredentialValid {
			valid = append(valid, cred)
		}
	}

	p.mu.Lock()
	p.all = all
	p.valid = valid
	p.next = 0
	p.mu.Unlock()

	log.Info("Validated credentials", "configured", len(secrets), "valid", len(valid))
	return append([]ttypes.Credential(nil), valid...)
}

func (p *Pool) probe(ctx context.Context, cred ttypes.Credential) ttypes.CredentialStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	log.Debug("Probing credential", "ordinal", cred.Ordinal, "fingerprint", cred.Fingerprint())
	if err := p.prober.Probe(ctx, cred); err != nil {
		log.Warn("Credential failed validation", "ordinal", cred.Ordinal, "fingerprint", cred.Fingerprint(), "error", err)
		return ttypes.CredentialInvalid
	}
	log.Info("Credential is valid", "ordinal", cred.Ordinal, "fingerprint", cred.Fingerprint())
	return ttypes.CredentialValid
}

// Next returns the next valid credential, or false once all were handed out.
func (p *Pool) Next() (ttypes.Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next >= len(p.valid) {
		return ttypes.Credential{}, false
	}
	cred := p.valid[p.next]
	p.next++
	return cred, true
}

// Exhausted reports whether Next has no credential left to return.
func (p *Pool) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next >= len(p.valid)
}

// Len returns the number of valid credentials.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.valid)
}

// All returns every configured credential with its validation status.
func (p *Pool) All() []ttypes.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ttypes.Credential(nil), p.all...)
}
