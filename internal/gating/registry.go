package gating

// Metadata is the UI-facing description of a category.
type Metadata struct {
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	BrandColor  string `json:"brandColor"`
	Description string `json:"description"`
}

// ConnectionSpec tells the client which wallet flow to offer for a
// category. The registry only describes the flow; it never verifies.
type ConnectionSpec struct {
	// WalletKind is the wallet family the client should connect
	// ("universal_profile" or "ethereum").
	WalletKind string `json:"walletKind"`
	// ChainID is the chain the wallet must be on.
	ChainID int64 `json:"chainId"`
	// HelpText is shown next to the connect button.
	HelpText string `json:"helpText,omitempty"`
}

// Descriptor bundles everything the registry knows about a category.
type Descriptor struct {
	Type       CategoryType   `json:"type"`
	Metadata   Metadata       `json:"metadata"`
	Connection ConnectionSpec `json:"connection"`
}

// Registry is a lookup table from category type to descriptor. It is
// built once at startup by BuildRegistry; registration after that point
// is allowed but idempotent, so repeated wiring calls are harmless.
type Registry struct {
	descriptors map[CategoryType]Descriptor
	order       []CategoryType
}

// BuildRegistry constructs the registry with the built-in categories.
// Call once at process start and share the result.
func BuildRegistry() *Registry {
	r := &Registry{descriptors: make(map[CategoryType]Descriptor)}
	r.Register(Descriptor{
		Type: CategoryUniversalProfile,
		Metadata: Metadata{
			Name:        "Universal Profile",
			Icon:        "up",
			BrandColor:  "#FE005B",
			Description: "Verify LYX balance, LSP7/LSP8 tokens and LSP26 followers on LUKSO",
		},
		Connection: ConnectionSpec{
			WalletKind: "universal_profile",
			ChainID:    42,
			HelpText:   "Connect your Universal Profile",
		},
	})
	r.Register(Descriptor{
		Type: CategoryEthereumProfile,
		Metadata: Metadata{
			Name:        "Ethereum Profile",
			Icon:        "eth",
			BrandColor:  "#627EEA",
			Description: "Verify ETH balance, ERC-20/ERC-721 tokens, ENS and EFP follows",
		},
		Connection: ConnectionSpec{
			WalletKind: "ethereum",
			ChainID:    1,
			HelpText:   "Connect an Ethereum wallet",
		},
	})
	return r
}

// Register adds a descriptor. Registering an already-known type is a
// no-op that keeps the original descriptor.
func (r *Registry) Register(d Descriptor) {
	if _, ok := r.descriptors[d.Type]; ok {
		return
	}
	r.descriptors[d.Type] = d
	r.order = append(r.order, d.Type)
}

// Get returns the descriptor for a type.
func (r *Registry) Get(t CategoryType) (Descriptor, bool) {
	d, ok := r.descriptors[t]
	return d, ok
}

// Types returns the registered types in registration order.
func (r *Registry) Types() []CategoryType {
	out := make([]CategoryType, len(r.order))
	copy(out, r.order)
	return out
}
