package strategy

// stub is a scripted strategy that records which predicates were asked.
type stub struct {
	Base
	name      string
	buy, sell bool
	updates   int
	buyAsked  int
	sellAsked int
}

func (s *stub) Name() string { return s.name }
func (s *stub) Update(Tick)  { s.updates++ }
func (s *stub) ShouldBuy(Tick) bool {
	s.buyAsked++
	return s.buy
}
func (s *stub) ShouldSell(Tick) bool {
	s.sellAsked++
	return s.sell
}
func (s *stub) State() map[string]any      { return s.baseState() }
func (s *stub) Restore(st map[string]any) { s.restoreBase(st) }
