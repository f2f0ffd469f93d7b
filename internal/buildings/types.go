// Package buildings holds the building catalog and the canonical registry
// of placed buildings.
package buildings

import "sort"

// Tier is the size class of a building type, driving its yield multiplier
// and TVL contribution.
type Tier string

const (
	TierMeme     Tier = "meme"
	TierDefi     Tier = "defi"
	TierBluechip Tier = "bluechip"
	TierWhale    Tier = "whale"
)

// TierMultiplier returns the yield multiplier for a tier.
func TierMultiplier(t Tier) float64 {
	switch t {
	case TierMeme:
		return 0.5
	case TierDefi:
		return 1.0
	case TierBluechip:
		return 1.5
	case TierWhale:
		return 2.0
	default:
		return 1.0
	}
}

// TierTVL returns the notional value a building of this tier locks.
func TierTVL(t Tier) float64 {
	switch t {
	case TierMeme:
		return 10_000
	case TierDefi:
		return 100_000
	case TierBluechip:
		return 1_000_000
	case TierWhale:
		return 10_000_000
	default:
		return 0
	}
}

// EffectDef is the static zone effect a building type projects onto
// nearby cells. Nil means the type projects nothing.
type EffectDef struct {
	Radius             int     `json:"radius"`
	YieldBonus         float64 `json:"yield_bonus"`
	HappinessBonus     float64 `json:"happiness_bonus"`
	VolatilityModifier float64 `json:"volatility_modifier"`
}

// Type is a catalog entry: the static definition buildings are placed from.
type Type struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Tier      Tier       `json:"tier"`
	Chain     string     `json:"chain"`    // e.g. "ethereum", "solana"
	Category  string     `json:"category"` // e.g. "dex", "lending", "nft"
	BaseYield float64    `json:"base_yield"` // Tokens per in-game day at level 1
	Cost      float64    `json:"cost"`
	Effect    *EffectDef `json:"effect,omitempty"`
}

// Position is a grid cell. At most one building occupies a cell.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Handle is an opaque reference to a placed building. Zero is never valid.
type Handle uint32

// Placed is one building instance on the grid. Owned exclusively by the
// Registry; other components hold Handles, never pointers.
type Placed struct {
	Handle        Handle   `json:"handle"`
	Type          *Type    `json:"-"`
	TypeID        string   `json:"type_id"`
	Pos           Position `json:"pos"`
	Active        bool     `json:"active"`
	Damaged       bool     `json:"damaged"`
	Decaying      bool     `json:"decaying"`
	Staked        bool     `json:"staked"`
	Level         int      `json:"level"` // Upgrade level 1–3
	LifetimeYield float64  `json:"lifetime_yield"`
	PlacedTick    uint64   `json:"placed_tick"`
}

// Catalog maps type ids to their definitions.
type Catalog struct {
	types map[string]*Type
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]*Type)}
}

// Add registers a type definition, replacing any previous one with the id.
func (c *Catalog) Add(t *Type) {
	c.types[t.ID] = t
}

// Get looks up a type by id.
func (c *Catalog) Get(id string) *Type {
	return c.types[id]
}

// Len reports the number of registered types.
func (c *Catalog) Len() int { return len(c.types) }

// All returns every type definition sorted by id.
func (c *Catalog) All() []*Type {
	out := make([]*Type, 0, len(c.types))
	for _, t := range c.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DefaultCatalog returns the built-in demo building types.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, t := range []*Type{
		{ID: "doge_kennel", Name: "Doge Kennel", Tier: TierMeme, Chain: "dogecoin", Category: "meme", BaseYield: 2, Cost: 500},
		{ID: "pepe_pond", Name: "Pepe Pond", Tier: TierMeme, Chain: "ethereum", Category: "meme", BaseYield: 3, Cost: 800},
		{ID: "uniswap_fountain", Name: "Uniswap Fountain", Tier: TierDefi, Chain: "ethereum", Category: "dex", BaseYield: 8, Cost: 3000,
			Effect: &EffectDef{Radius: 3, YieldBonus: 0.05, HappinessBonus: 0.02}},
		{ID: "raydium_bazaar", Name: "Raydium Bazaar", Tier: TierDefi, Chain: "solana", Category: "dex", BaseYield: 9, Cost: 3500},
		{ID: "aave_vault", Name: "Aave Vault", Tier: TierDefi, Chain: "ethereum", Category: "lending", BaseYield: 7, Cost: 2800,
			Effect: &EffectDef{Radius: 2, YieldBonus: 0.03, VolatilityModifier: -0.05}},
		{ID: "btc_citadel", Name: "Bitcoin Citadel", Tier: TierBluechip, Chain: "bitcoin", Category: "store_of_value", BaseYield: 15, Cost: 12000,
			Effect: &EffectDef{Radius: 4, HappinessBonus: 0.05, VolatilityModifier: -0.1}},
		{ID: "eth_beacon", Name: "Ether Beacon", Tier: TierBluechip, Chain: "ethereum", Category: "store_of_value", BaseYield: 14, Cost: 11000},
		{ID: "whale_aquarium", Name: "Whale Aquarium", Tier: TierWhale, Chain: "ethereum", Category: "fund", BaseYield: 40, Cost: 60000,
			Effect: &EffectDef{Radius: 5, YieldBonus: 0.08, HappinessBonus: 0.04, VolatilityModifier: 0.1}},
		{ID: "nft_gallery", Name: "NFT Gallery", Tier: TierMeme, Chain: "ethereum", Category: "nft", BaseYield: 4, Cost: 1200,
			Effect: &EffectDef{Radius: 2, HappinessBonus: 0.06}},
		{ID: "solana_spire", Name: "Solana Spire", Tier: TierBluechip, Chain: "solana", Category: "infrastructure", BaseYield: 13, Cost: 10000},
	} {
		c.Add(t)
	}
	return c
}
