package exchangeclient

import "context"

// StaticResolver resolves every credential id to the single configured
// account key pair. The multi-tenant credential store (encryption at rest,
// per-owner secrets) is an external admin-path concern (§1); this resolver
// is the in-process stand-in the core talks to until that port exists.
type StaticResolver struct {
	APIKey    string
	APISecret string
}

func (r StaticResolver) Resolve(_ context.Context, _ string) (string, string, error) {
	return r.APIKey, r.APISecret, nil
}
