package testdata

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Supported data types
const (
	TypeUser    = "user"
	TypeProduct = "product"
	TypeOrder   = "order"
)

// MaxCount bounds the records one generate call produces
const MaxCount = 1000

// DataTypes lists the types that have a generator
var DataTypes = []string{TypeUser, TypeProduct, TypeOrder}

// productCatalog is the fixed sample products are drawn from
var productCatalog = []map[string]interface{}{
	{"name": "Blue Top", "category": "Women", "brand": "Polo", "price": "Rs. 500"},
	{"name": "Men Tshirt", "category": "Men", "brand": "H&M", "price": "Rs. 400"},
	{"name": "Sleeveless Dress", "category": "Women", "brand": "Madame", "price": "Rs. 1000"},
	{"name": "Stylish Dress", "category": "Women", "brand": "Madame", "price": "Rs. 1500"},
	{"name": "Cotton T-Shirt", "category": "Men", "brand": "H&M", "price": "Rs. 350"},
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generator produces synthetic records. It is safe for concurrent use.
type Generator struct {
	now func() time.Time
	rnd *rand.Rand
	mu  sync.Mutex
}

// NewGenerator creates a generator seeded from the runtime's random source
func NewGenerator() *Generator {
	return NewSeededGenerator(rand.Uint64(), rand.Uint64(), time.Now)
}

// NewSeededGenerator creates a reproducible generator
func NewSeededGenerator(seed1, seed2 uint64, now func() time.Time) *Generator {
	return &Generator{now: now, rnd: rand.New(rand.NewPCG(seed1, seed2))}
}

// Supports reports whether dataType has a generator
func (g *Generator) Supports(dataType string) bool {
	switch dataType {
	case TypeUser, TypeProduct, TypeOrder:
		return true
	}
	return false
}

// Generate returns one record, or a list of count records when count > 1.
// count is capped at MaxCount.
func (g *Generator) Generate(dataType string, count int) (interface{}, error) {
	if !g.Supports(dataType) {
		return nil, fmt.Errorf("no generator for %q", dataType)
	}
	count = min(count, MaxCount)
	if count <= 1 {
		return g.one(dataType), nil
	}
	records := make([]interface{}, count)
	for i := range records {
		records[i] = g.one(dataType)
	}
	return records, nil
}

func (g *Generator) one(dataType string) map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch dataType {
	case TypeUser:
		return g.user()
	case TypeProduct:
		return g.product()
	default:
		return g.order()
	}
}

func (g *Generator) user() map[string]interface{} {
	ts := g.now().UnixMilli()
	token := g.token(6)
	return map[string]interface{}{
		"name":         fmt.Sprintf("Test User %d", ts),
		"email":        fmt.Sprintf("testuser%d%s@example.com", ts, token),
		"password":     fmt.Sprintf("password%d", ts),
		"firstName":    "Test",
		"lastName":     "User",
		"company":      "Test Company",
		"address1":     "123 Test Street",
		"address2":     "Apt 4B",
		"country":      "United States",
		"state":        "California",
		"city":         "San Francisco",
		"zipCode":      "94102",
		"mobileNumber": fmt.Sprintf("+1%d", 1000000000+g.rnd.Int64N(9000000000)),
	}
}

func (g *Generator) product() map[string]interface{} {
	picked := productCatalog[g.rnd.IntN(len(productCatalog))]
	out := make(map[string]interface{}, len(picked))
	for k, v := range picked {
		out[k] = v
	}
	return out
}

func (g *Generator) order() map[string]interface{} {
	return map[string]interface{}{
		"productId":   g.rnd.IntN(1000) + 1,
		"quantity":    g.rnd.IntN(5) + 1,
		"totalAmount": g.rnd.IntN(1000) + 100,
		"orderDate":   g.now().UTC().Format(time.RFC3339Nano),
		"status":      "pending",
	}
}

func (g *Generator) token(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = tokenAlphabet[g.rnd.IntN(len(tokenAlphabet))]
	}
	return string(b)
}
