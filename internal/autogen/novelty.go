package autogen

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/gowebpki/jcs"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/model"
)

// recentHashCap bounds the ring of recently generated payload hashes.
const recentHashCap = 500

// patchSimilarityThreshold routes a near-duplicate candidate into a patch
// proposal instead of a new write.
const patchSimilarityThreshold = 0.85

// PatchProposal targets an existing DTU instead of creating a new one.
type PatchProposal struct {
	TargetID   string  `json:"target_id"`
	Similarity float64 `json:"similarity"`
	Candidate  *Candidate
}

// hashRing remembers the last N generated payload hashes.
type hashRing struct {
	mu    sync.Mutex
	seen  map[string]bool
	order []string
}

func newHashRing() *hashRing {
	return &hashRing{seen: make(map[string]bool)}
}

// Remember records a hash, evicting the oldest past capacity, and reports
// whether the hash was already present.
func (r *hashRing) Remember(h string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[h] {
		return true
	}
	r.seen[h] = true
	r.order = append(r.order, h)
	if len(r.order) > recentHashCap {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	return false
}

// Export returns the remembered hashes, oldest first.
func (r *hashRing) Export() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// RecentHashes returns the novelty ring contents for snapshots.
func (p *Pipeline) RecentHashes() []string {
	return p.recent.Export()
}

// RestoreRecentHashes reinstalls the novelty ring from a snapshot.
func (p *Pipeline) RestoreRecentHashes(hashes []string) {
	for _, h := range hashes {
		p.recent.Remember(h)
	}
}

// payloadHash hashes the candidate identity: title, claims in order, tags.
func payloadHash(cand *Candidate) (string, error) {
	claims := make([]string, len(cand.Claims))
	for i, c := range cand.Claims {
		claims[i] = c.Text
	}
	raw, err := json.Marshal(map[string]any{
		"title":  cand.Title,
		"claims": claims,
		"tags":   cand.Tags,
	})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// CheckNovelty rejects exact regenerations and converts near-duplicates
// into patch proposals. A nil return with ok=true means the candidate is
// genuinely new.
func (p *Pipeline) CheckNovelty(cand *Candidate) (ok bool, patch *PatchProposal, err error) {
	h, err := payloadHash(cand)
	if err != nil {
		return false, nil, err
	}
	if p.recent.Remember(h) {
		return false, nil, nil
	}

	claims := make([]string, len(cand.Claims))
	for i, c := range cand.Claims {
		claims[i] = c.Text
	}
	var best float64
	var bestID string
	for _, d := range p.atlas.All() {
		if d.Status == model.StatusSameAs {
			continue
		}
		sim := atlas.Similarity(cand.Title, cand.Tags, claims, d.Title, d.Tags, dtuClaimTexts(d))
		if sim > best {
			best = sim
			bestID = d.ID
		}
	}
	if best >= patchSimilarityThreshold {
		return true, &PatchProposal{TargetID: bestID, Similarity: best, Candidate: cand}, nil
	}
	return true, nil, nil
}

func dtuClaimTexts(d *model.DTU) []string {
	out := make([]string, len(d.Claims))
	for i, c := range d.Claims {
		out[i] = c.Text
	}
	return out
}
