package store

import (
	"sync"

	"github.com/google/uuid"

	"goalforge/internal/plan"
)

// MemoryStore is the ephemeral Repository backend. Everything lives in maps
// behind one mutex; there is no rollback, so a multi-row write that fails
// partway leaves whatever it managed to write. Intended for tests and
// throwaway sessions.
type MemoryStore struct {
	mu sync.Mutex

	goals     map[string]plan.Goal
	solutions map[string]string   // ssol id -> goal id
	solOrder  map[string][]string // ssol id -> COS ids in creation order
	cos       map[string]plan.COS
	ces       map[string]plan.CE
	ceByNorm  map[string]string            // normalized content -> ce id
	links     map[string][]string          // cos id -> ce ids in link order
	linked    map[string]map[string]bool   // cos id -> ce id set
	goalOrder []string
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		goals:     make(map[string]plan.Goal),
		solutions: make(map[string]string),
		solOrder:  make(map[string][]string),
		cos:       make(map[string]plan.COS),
		ces:       make(map[string]plan.CE),
		ceByNorm:  make(map[string]string),
		links:     make(map[string][]string),
		linked:    make(map[string]map[string]bool),
	}
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateGoal(g plan.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; !ok {
		s.goalOrder = append(s.goalOrder, g.ID)
	}
	s.goals[g.ID] = g
	return nil
}

func (s *MemoryStore) GetGoal(id string) (plan.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return plan.Goal{}, ErrNotFound
	}
	return g, nil
}

func (s *MemoryStore) ListGoals() ([]plan.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goals := make([]plan.Goal, 0, len(s.goalOrder))
	for _, id := range s.goalOrder {
		goals = append(goals, s.goals[id])
	}
	if len(goals) == 0 {
		return nil, nil
	}
	return goals, nil
}

func (s *MemoryStore) CreateSolution(sol *plan.StructuredSolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goals[sol.Goal.ID]; !ok {
		s.goals[sol.Goal.ID] = sol.Goal
		s.goalOrder = append(s.goalOrder, sol.Goal.ID)
	}
	s.solutions[sol.ID] = sol.Goal.ID
	for _, c := range sol.AllCOS() {
		s.cos[c.ID] = c
		s.solOrder[sol.ID] = append(s.solOrder[sol.ID], c.ID)
	}
	return nil
}

func (s *MemoryStore) GetSolution(id string) (*plan.StructuredSolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goalID, ok := s.solutions[id]
	if !ok {
		return nil, ErrNotFound
	}
	sol := plan.NewStructuredSolution(s.goals[goalID])
	sol.ID = id
	for _, cosID := range s.solOrder[id] {
		if c, ok := s.cos[cosID]; ok {
			sol.AddCOS(c)
		}
	}
	return sol, nil
}

func (s *MemoryStore) CreateCOS(c plan.COS) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cos[c.ID] = c
	s.solOrder[c.SSOLID] = append(s.solOrder[c.SSOLID], c.ID)
	return nil
}

func (s *MemoryStore) GetCOS(id string) (plan.COS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cos[id]
	if !ok {
		return plan.COS{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) UpdateCOS(c plan.COS) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cos[c.ID]; !ok {
		return ErrNotFound
	}
	s.cos[c.ID] = c
	return nil
}

func (s *MemoryStore) DeleteCOS(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cos[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.cos, id)
	s.solOrder[c.SSOLID] = removeID(s.solOrder[c.SSOLID], id)

	orphaned := s.links[id]
	delete(s.links, id)
	delete(s.linked, id)

	for _, ceID := range orphaned {
		if s.ceLinkCount(ceID) == 0 {
			ce := s.ces[ceID]
			delete(s.ces, ceID)
			delete(s.ceByNorm, plan.NormalizeCEContent(ce.Content))
		}
	}
	return nil
}

func (s *MemoryStore) GetCE(id string) (plan.CE, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.ces[id]
	if !ok {
		return plan.CE{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) UpdateCE(c plan.CE) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.ces[c.ID]
	if !ok {
		return ErrNotFound
	}
	delete(s.ceByNorm, plan.NormalizeCEContent(old.Content))
	s.ces[c.ID] = c
	s.ceByNorm[plan.NormalizeCEContent(c.Content)] = c.ID
	return nil
}

func (s *MemoryStore) DeleteCE(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.ces[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.ces, id)
	delete(s.ceByNorm, plan.NormalizeCEContent(c.Content))
	for cosID := range s.linked {
		if s.linked[cosID][id] {
			delete(s.linked[cosID], id)
			s.links[cosID] = removeID(s.links[cosID], id)
		}
	}
	return nil
}

func (s *MemoryStore) FindOrCreateCE(content, ceType string) (plan.CE, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOrCreateCELocked(content, ceType), nil
}

func (s *MemoryStore) LinkCE(cosID, ceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkCELocked(cosID, ceID)
	return nil
}

func (s *MemoryStore) AttachCEs(cosID string, ces []plan.CE) ([]plan.CE, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]plan.CE, 0, len(ces))
	for _, ce := range ces {
		stored := s.findOrCreateCELocked(ce.Content, ce.CEType)
		s.linkCELocked(cosID, stored.ID)
		out = append(out, s.ces[stored.ID])
	}
	return out, nil
}

// findOrCreateCELocked is the dedup primitive. Caller holds mu.
func (s *MemoryStore) findOrCreateCELocked(content, ceType string) plan.CE {
	normalized := plan.NormalizeCEContent(content)
	if id, ok := s.ceByNorm[normalized]; ok {
		return s.ces[id]
	}

	if ceType == "" {
		ceType = plan.CETypeUnknown
	}
	c := plan.CE{
		ID:      uuid.NewString(),
		Content: content,
		CEType:  ceType,
	}
	s.ces[c.ID] = c
	s.ceByNorm[normalized] = c.ID
	return c
}

// linkCELocked records membership and the owning COS. Caller holds mu.
func (s *MemoryStore) linkCELocked(cosID, ceID string) {
	if s.linked[cosID] == nil {
		s.linked[cosID] = make(map[string]bool)
	}
	if s.linked[cosID][ceID] {
		return
	}
	s.linked[cosID][ceID] = true
	s.links[cosID] = append(s.links[cosID], ceID)

	if c, ok := s.ces[ceID]; ok && c.COSID == "" {
		c.COSID = cosID
		s.ces[ceID] = c
	}
}

func (s *MemoryStore) CEsForCOS(cosID string) ([]plan.CE, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ces []plan.CE
	for _, ceID := range s.links[cosID] {
		if c, ok := s.ces[ceID]; ok {
			ces = append(ces, c)
		}
	}
	return ces, nil
}

// ceLinkCount counts remaining links to a CE across all COS. Caller holds mu.
func (s *MemoryStore) ceLinkCount(ceID string) int {
	n := 0
	for _, set := range s.linked {
		if set[ceID] {
			n++
		}
	}
	return n
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
