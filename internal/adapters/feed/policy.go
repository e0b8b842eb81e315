package feed

type BackpressureAction int

const (
	DropMessage BackpressureAction = iota
	KickSubscriber
)

// Policy decides what happens to a subscriber that cannot keep up.
type Policy interface {
	OnBackPressure(id string) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(string) BackpressureAction {
	return KickSubscriber
}
