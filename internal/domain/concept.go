package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CoactivationPair is a symmetric per-namespace count of how often two items
// appeared together in a final retrieval or working-memory set. ItemA is
// always the lexically smaller id; callers must canonicalize through
// CanonicalPair.
type CoactivationPair struct {
	Namespace string    `json:"namespace"`
	ItemA     uuid.UUID `json:"item_a"`
	ItemB     uuid.UUID `json:"item_b"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanonicalPair orders two ids so (a,b) and (b,a) hit the same record.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(a.String(), b.String()) > 0 {
		return b, a
	}
	return a, b
}

// ConceptCluster is a stable coactivation cluster eligible to become (or
// refresh) a concept aggregate.
type ConceptCluster struct {
	Namespace string
	Members   []uuid.UUID
}

// Key returns a deterministic identity for the cluster so concept creation
// is idempotent. The key anchors on the lexically smallest member id, which
// stays stable as the cluster accretes members; a grown cluster refreshes
// the same concept instead of minting a new one.
func (c ConceptCluster) Key() string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.String()
	}
	sort.Strings(ids)
	anchor := ""
	if len(ids) > 0 {
		anchor = ids[0]
	}
	h := sha256.Sum256([]byte(c.Namespace + ":" + anchor))
	return hex.EncodeToString(h[:16])
}
