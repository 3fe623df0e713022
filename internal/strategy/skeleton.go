package strategy

// Skeleton never trades. It exercises the full pipeline without risking funds
// and is the starting point for new strategies.
type Skeleton struct {
	Base
	lastPrice float64
}

func NewSkeleton() *Skeleton { return &Skeleton{} }

func (s *Skeleton) Name() string { return "skeleton" }
func (s *Skeleton) Update(t Tick) { s.lastPrice = t.Price }
func (s *Skeleton) ShouldBuy(Tick) bool { return false }
func (s *Skeleton) ShouldSell(Tick) bool { return false }

func (s *Skeleton) State() map[string]any {
	st := s.baseState()
	st["last_price"] = s.lastPrice
	return st
}

func (s *Skeleton) Restore(st map[string]any) {
	s.restoreBase(st)
	s.lastPrice = floatOf(st["last_price"])
}
