// Package synth procedurally generates entity records and transactions.
// It stands in for external registries and sanctions feeds: entity data is
// derived from a seeded RNG so that enrichment is idempotent per name
// without keeping any per-name state.
package synth

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// countryRisk scores jurisdictions for generation-time decisions. Separate
// from the scoring tables: this one includes low-risk countries so that
// generated entities spread across both ends.
var countryRisk = map[string]float64{
	"RU": 0.8,
	"CN": 0.7,
	"IR": 0.9,
	"KP": 0.9,
	"SY": 0.8,
	"VE": 0.7,
	"MM": 0.7,
	"ZW": 0.6,
	"US": 0.2,
	"GB": 0.2,
	"DE": 0.2,
	"FR": 0.2,
	"CA": 0.2,
}

// countryCodes is the fixed selection order for jurisdiction assignment.
// Map iteration order is randomized per process, so picking from the map
// would break per-name determinism.
var countryCodes = []string{
	"CA", "CN", "DE", "FR", "GB", "IR", "KP", "MM", "RU", "SY", "US", "VE", "ZW",
}

// highRiskCodes are the jurisdictions shell companies are biased toward.
var highRiskCodes = []string{"RU", "CN", "IR", "VE", "MM", "ZW", "KP", "SY"}

var evidencePool = []string{
	"Company Registry",
	"SEC EDGAR",
	"LEI Database",
	"Wikipedia",
	"News Analysis",
	"Sanctions List",
}

var (
	surnames = []string{
		"Abbott", "Barton", "Calloway", "Delgado", "Eriksen", "Farrell",
		"Grayson", "Holloway", "Ibarra", "Jennings", "Keller", "Lindqvist",
		"Mercer", "Novak", "Okafor", "Pemberton", "Quintero", "Rowe",
		"Sutton", "Thorne", "Ueda", "Vance", "Whitfield", "Yates",
	}
	givenNames = []string{
		"Adrian", "Beatrice", "Carlos", "Dana", "Elena", "Felix",
		"Grace", "Hugo", "Ingrid", "Jonas", "Klara", "Leo",
		"Mara", "Nina", "Oscar", "Petra", "Rafael", "Sofia",
		"Tomas", "Vera",
	}
	companyWords = []string{
		"Apex", "Beacon", "Cascade", "Delta", "Ember", "Frontier",
		"Granite", "Horizon", "Ironwood", "Juniper", "Keystone", "Lattice",
		"Meridian", "Northgate", "Obsidian", "Pinnacle", "Quarry", "Ridgeline",
		"Summit", "Tidewater", "Vertex", "Westbrook",
	}
)

var transactionTypes = []string{"Payment", "Transfer", "Invoice", "Service fee", "Consulting fee"}

var currencies = []string{"USD", "EUR", "GBP", "JPY", "CHF"}

// Generator produces synthetic entities and transactions. Entity generation
// is a pure function of (seed, name, clock); transaction generation draws
// from a shared stream guarded by a mutex.
type Generator struct {
	seed int64
	now  func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator with the given seed. now may be nil, in
// which case time.Now is used.
func NewGenerator(seed int64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		seed: seed,
		now:  now,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Enrich generates the entity record for a name. Deterministic: the same
// generator seed and name always produce the same record, so no memoization
// is needed for idempotence.
func (g *Generator) Enrich(_ context.Context, name string) (*domain.Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is required", domain.ErrInvalidInput)
	}

	rng := g.nameRNG(name)
	entityType := classifyForSeed(name)

	jurisdiction := countryCodes[rng.Intn(len(countryCodes))]
	if entityType == domain.TypeShellCompany {
		jurisdiction = highRiskCodes[rng.Intn(len(highRiskCodes))]
	}

	e := &domain.Entity{
		Name:               name,
		Type:               entityType,
		ConfidenceScore:    uniform(rng, 0.7, 1.0),
		EvidenceSources:    pickEvidence(rng),
		RegistrationNumber: fmt.Sprintf("%s%07d", jurisdiction, rng.Intn(10_000_000)),
		Jurisdiction:       jurisdiction,
		IncorporationDate:  g.incorporationDate(rng, entityType),
		Directors:          personNames(rng, 1+rng.Intn(5)),
		SanctionsStatus:    g.sanctions(rng, entityType, jurisdiction),
		RiskFactors:        riskFactors(rng, entityType),
	}

	if entityType == domain.TypeShellCompany {
		e.Shareholders = personNames(rng, rng.Intn(3))
	} else {
		e.Shareholders = personNames(rng, 1+rng.Intn(8))
	}

	e.SetReputation(reputation(rng, entityType))
	return e, nil
}

// Generate produces one synthetic transaction: a free-text description
// naming a sender and recipient, a tiered amount with occasional round
// values, and a business date within the last month.
func (g *Generator) Generate() *domain.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	rng := g.rng

	// Tiered amounts: mostly normal, with occasional medium and large.
	var amount float64
	switch rng.Intn(11) {
	case 0:
		amount = float64(50_000 + rng.Intn(150_001))
	case 1:
		amount = float64(500_000 + rng.Intn(1_500_001))
	default:
		amount = float64(1_000 + rng.Intn(49_001))
	}
	if rng.Float64() < 0.2 {
		amount = math.Round(amount/1000) * 1000
	}

	now := g.now()
	txType := transactionTypes[rng.Intn(len(transactionTypes))]
	sender := entityName(rng)
	recipient := entityName(rng)

	return &domain.Transaction{
		ID:          transactionID(),
		Description: fmt.Sprintf("%s from %s to %s", txType, sender, recipient),
		Amount:      amount,
		Currency:    currencies[rng.Intn(len(currencies))],
		Date:        now.AddDate(0, 0, -rng.Intn(30)).Format("2006-01-02"),
		CreatedAt:   now,
	}
}

// nameRNG derives the per-name random stream: the generator seed XORed with
// an FNV-1a hash of the name.
func (g *Generator) nameRNG(name string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewSource(g.seed ^ int64(h.Sum64())))
}

func (g *Generator) incorporationDate(rng *rand.Rand, t domain.EntityType) string {
	now := g.now()

	yearsAgo := 1 + rng.Intn(30)
	date := now.AddDate(0, 0, -365*yearsAgo)

	// Fresh shells are common in the synthetic population.
	if t == domain.TypeShellCompany && rng.Float64() < 0.4 {
		date = now.AddDate(0, 0, -(30 + rng.Intn(151)))
	}

	return date.Format("2006-01-02")
}

func (g *Generator) sanctions(rng *rand.Rand, t domain.EntityType, jurisdiction string) bool {
	p := 0.05
	if t == domain.TypeShellCompany {
		p += 0.1
	}
	switch jurisdiction {
	case "RU", "IR", "KP", "SY":
		p += 0.2
	}
	return rng.Float64() < p
}

// classifyForSeed assigns the type used to seed entity attributes. This is
// a separate rule table from the extraction-time classifier: it checks
// shell indicators before financial ones, treats "invest" and "capital" as
// financial markers, and defaults to Corporation rather than Unknown.
func classifyForSeed(name string) domain.EntityType {
	lower := strings.ToLower(name)

	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("holdings", "investments", "group", "capital", "partners"):
		return domain.TypeShellCompany
	case contains("bank", "financial", "invest", "capital", "fund"):
		return domain.TypeFinancialIntermediary
	case contains("government", "ministry", "agency", "department"):
		return domain.TypeGovernmentAgency
	case contains("foundation", "charity", "trust", "association"):
		return domain.TypeNonProfit
	default:
		return domain.TypeCorporation
	}
}

// pickEvidence samples a non-empty random subset of the evidence pool,
// preserving pool order.
func pickEvidence(rng *rand.Rand) []string {
	n := 1 + rng.Intn(len(evidencePool))
	perm := rng.Perm(len(evidencePool))[:n]

	picked := make([]bool, len(evidencePool))
	for _, i := range perm {
		picked[i] = true
	}

	sources := make([]string, 0, n)
	for i, p := range picked {
		if p {
			sources = append(sources, evidencePool[i])
		}
	}
	return sources
}

func riskFactors(rng *rand.Rand, t domain.EntityType) map[string]float64 {
	factors := make(map[string]float64)

	if t == domain.TypeShellCompany {
		factors["shell_structure"] = uniform(rng, 0.6, 0.9)
		factors["complex_ownership"] = uniform(rng, 0.5, 0.8)
	}
	if t == domain.TypeFinancialIntermediary {
		factors["high_volume"] = uniform(rng, 0.4, 0.7)
	}
	if rng.Float64() < 0.2 {
		factors["news_mention"] = uniform(rng, 0.3, 0.7)
	}
	if rng.Float64() < 0.1 {
		factors["regulatory_issue"] = uniform(rng, 0.5, 0.9)
	}

	return factors
}

func reputation(rng *rand.Rand, t domain.EntityType) float64 {
	switch t {
	case domain.TypeShellCompany:
		return uniform(rng, 0.2, 0.5)
	case domain.TypeFinancialIntermediary:
		return uniform(rng, 0.3, 0.7)
	case domain.TypeGovernmentAgency:
		return uniform(rng, 0.5, 0.8)
	default:
		return uniform(rng, 0.4, 0.9)
	}
}

func personNames(rng *rand.Rand, n int) []string {
	if n <= 0 {
		return nil
	}
	names := make([]string, n)
	for i := range names {
		names[i] = givenNames[rng.Intn(len(givenNames))] + " " + surnames[rng.Intn(len(surnames))]
	}
	return names
}

func entityName(rng *rand.Rand) string {
	switch rng.Intn(5) {
	case 0:
		return companyWords[rng.Intn(len(companyWords))] + " " + surnames[rng.Intn(len(surnames))] + " Ltd"
	case 1:
		return surnames[rng.Intn(len(surnames))] + " " + pick(rng, "Inc", "LLC", "Corp", "Group")
	case 2:
		return surnames[rng.Intn(len(surnames))] + " & " + surnames[rng.Intn(len(surnames))] + " " + pick(rng, "Associates", "Partners")
	case 3:
		return companyWords[rng.Intn(len(companyWords))] + " " + pick(rng, "Holdings", "Investments", "Capital", "Industries")
	default:
		return pick(rng, "Global", "International", "United", "National") + " " + companyWords[rng.Intn(len(companyWords))] + " " + pick(rng, "Corp", "Inc", "Co", "Ltd")
	}
}

func pick(rng *rand.Rand, options ...string) string {
	return options[rng.Intn(len(options))]
}

func transactionID() string {
	u := uuid.New()
	return "TXN" + strings.ToUpper(fmt.Sprintf("%x", u[:4]))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
