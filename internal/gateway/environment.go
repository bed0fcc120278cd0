package gateway

import "fmt"

// Credentials is one ECPay merchant signing key pair.
type Credentials struct {
	MerchantID string
	HashKey    string
	HashIV     string
}

// Environment is the credential set resolved for a single request. It is
// selected from the inbound MerchantID (or the configured default for
// outbound calls) and threaded through explicitly, never read from env vars
// deep inside a call chain.
type Environment struct {
	Name  string
	Creds Credentials

	// AllowTestMac permits the literal "test" digest in place of a real
	// CheckMacValue. Only ever set on sandbox environments.
	AllowTestMac bool
}

// Registry holds the configured environments keyed by merchant id.
type Registry struct {
	byMerchant map[string]Environment
	def        Environment
}

// NewRegistry builds a registry. The default environment is used for
// outbound calls; inbound callbacks select by their MerchantID field.
func NewRegistry(def Environment, others ...Environment) *Registry {
	r := &Registry{
		byMerchant: make(map[string]Environment),
		def:        def,
	}
	r.byMerchant[def.Creds.MerchantID] = def
	for _, env := range others {
		r.byMerchant[env.Creds.MerchantID] = env
	}
	return r
}

// Default returns the environment used for outbound gateway calls.
func (r *Registry) Default() Environment {
	return r.def
}

// ByMerchantID resolves the environment for an inbound MerchantID.
func (r *Registry) ByMerchantID(merchantID string) (Environment, error) {
	env, ok := r.byMerchant[merchantID]
	if !ok {
		return Environment{}, fmt.Errorf("unknown merchant id: %s", merchantID)
	}
	return env, nil
}
