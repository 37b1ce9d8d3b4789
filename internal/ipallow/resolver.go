// Package ipallow answers whether an inbound source address is trusted,
// combining a static environment list with an optionally file-backed list
// that is reloaded on an interval.
package ipallow

import (
	"net/netip"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/signalgate/signalgate/internal/pkg/logger"
)

// MinReloadInterval is the floor for file re-reads.
const MinReloadInterval = 5 * time.Minute

type rule struct {
	exact  netip.Addr
	prefix netip.Prefix
	isCIDR bool
}

// Resolver caches the combined allowlist. Reload swaps the whole rule slice
// atomically under the mutex; lookups only read.
type Resolver struct {
	envRules  []rule
	filePath  string
	reloadGap time.Duration
	devBypass bool

	// configured is false only when neither env nor file sources exist.
	configured bool

	mu        sync.RWMutex
	fileRules []rule
	lastLoad  time.Time

	now func() time.Time
}

// New builds a resolver. sources is a comma-separated list of IPs and IPv4
// CIDRs; filePath may be empty. devBypass only applies when no source of
// any kind is configured; otherwise the list fails closed.
func New(sources, filePath string, reloadGap time.Duration, devBypass bool) *Resolver {
	if reloadGap < MinReloadInterval {
		reloadGap = MinReloadInterval
	}
	r := &Resolver{
		envRules:   parseRules(strings.Split(sources, ",")),
		filePath:   filePath,
		reloadGap:  reloadGap,
		devBypass:  devBypass,
		configured: strings.TrimSpace(sources) != "" || filePath != "",
		now:        time.Now,
	}
	if filePath != "" {
		r.reloadFile()
	}
	return r
}

// IsAllowed reports whether ip may reach the ingress. An empty combined
// list rejects everything unless the resolver is entirely unconfigured and
// the development bypass is on.
func (r *Resolver) IsAllowed(ip string) bool {
	if !r.configured {
		return r.devBypass
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	r.maybeReload()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rules := range [][]rule{r.envRules, r.fileRules} {
		for _, ru := range rules {
			if ru.isCIDR {
				if ru.prefix.Contains(addr) {
					return true
				}
			} else if ru.exact == addr {
				return true
			}
		}
	}
	return false
}

func (r *Resolver) maybeReload() {
	if r.filePath == "" {
		return
	}
	r.mu.RLock()
	due := r.now().Sub(r.lastLoad) >= r.reloadGap
	r.mu.RUnlock()
	if due {
		r.reloadFile()
	}
}

func (r *Resolver) reloadFile() {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		logger.Warn("allowlist file unreadable, keeping previous list", "path", r.filePath, "error", err)
		r.mu.Lock()
		r.lastLoad = r.now()
		r.mu.Unlock()
		return
	}
	rules := parseRules(strings.Split(string(data), "\n"))

	r.mu.Lock()
	r.fileRules = rules
	r.lastLoad = r.now()
	r.mu.Unlock()
}

// parseRules ignores blanks, comments and anything unparsable.
func parseRules(entries []string) []rule {
	rules := make([]rule, 0, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil || !prefix.Addr().Is4() {
				continue
			}
			rules = append(rules, rule{prefix: prefix.Masked(), isCIDR: true})
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			continue
		}
		rules = append(rules, rule{exact: addr.Unmap()})
	}
	return rules
}
