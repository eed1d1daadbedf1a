package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	RequestsServed   Counter
	RequestsFailed   Counter
	OrdersBuilt      Counter
	OrdersExecuted   Counter
	OrdersFailed     Counter
	DelegationsBuilt Counter
	ChatCompletions  Counter
	ChatFailed       Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		RequestsServed:   n,
		RequestsFailed:   n,
		OrdersBuilt:      n,
		OrdersExecuted:   n,
		OrdersFailed:     n,
		DelegationsBuilt: n,
		ChatCompletions:  n,
		ChatFailed:       n,
	}
}
